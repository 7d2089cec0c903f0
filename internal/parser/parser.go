// Package parser tokenizes the key=value text tables a tracking server
// sends on the control channel.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed = errors.New("parser: malformed table")
	ErrNotTable  = errors.New("parser: unexpected table header")
)

// Token is one key=value pair. A token without '=' has an empty Value and
// Bare set.
type Token struct {
	Key   string
	Value string
	Bare  bool
}

// String returns the token as it appeared on the wire.
func (t Token) String() string {
	if t.Bare {
		return t.Key
	}
	return t.Key + "=" + t.Value
}

// Tokenize splits text on whitespace into key=value tokens.
func Tokenize(text string) []Token {
	fields := strings.Fields(text)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		tokens = append(tokens, Token{Key: k, Value: v, Bare: !ok})
	}
	return tokens
}

// Header returns the first token of text, which selects the table kind.
func Header(text string) Token {
	text = strings.TrimLeft(text, " \t\r\n")
	end := strings.IndexAny(text, " \t\r\n")
	if end < 0 {
		end = len(text)
	}
	toks := Tokenize(text[:end])
	if len(toks) == 0 {
		return Token{}
	}
	return toks[0]
}

// Join formats tokens back into wire text.
func Join(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// parseUint accepts decimal, 0x hex and integral float text such as "32.0".
func parseUint(s string, bits int) (uint64, error) {
	if v, err := strconv.ParseUint(s, 0, bits); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) || (bits < 64 && uint64(f) >= 1<<bits) {
		return 0, fmt.Errorf("%q is not a valid unsigned integer", s)
	}
	return uint64(f), nil
}

func parseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("%q is not a valid integer", s)
	}
	return int64(f), nil
}

// ParseIDs parses a comma separated id list. An empty string is an empty
// list.
func ParseIDs(s string) ([]uint64, error) {
	if s == "" {
		return []uint64{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := parseUint(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("id list %q: %w", s, err)
		}
		ids = append(ids, v)
	}
	return ids, nil
}

func parseIDs32(s string) ([]uint32, error) {
	ids, err := ParseIDs(s)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out, nil
}

func appendOption(opts string, t Token) string {
	if opts == "" {
		return t.String()
	}
	return opts + " " + t.String()
}
