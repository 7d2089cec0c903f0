// Package property holds the key/value state a session mirrors from the
// server. Values are one of a closed set of variants and keep their
// variant across text updates.
package property

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/OCAP2/owl/pkg/core"
)

var (
	ErrUnsupported = errors.New("property: unsupported value type")
	ErrCoerce      = errors.New("property: cannot coerce value")
)

// Kind is the variant of a stored value.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindInt
	KindFloat
	KindInts
	KindFloats
	KindCameras
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindInts:
		return "int[]"
	case KindFloats:
		return "float[]"
	case KindCameras:
		return "camera[]"
	default:
		return "none"
	}
}

// KindOf returns the variant of v, or KindNone when v is not storable.
func KindOf(v any) Kind {
	switch v.(type) {
	case string:
		return KindString
	case int32:
		return KindInt
	case float32:
		return KindFloat
	case []int32:
		return KindInts
	case []float32:
		return KindFloats
	case []core.Camera:
		return KindCameras
	default:
		return KindNone
	}
}

// Store is an insertion-ordered property map. Not safe for concurrent use.
type Store struct {
	logger *slog.Logger
	keys   []string
	values map[string]any
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger, values: make(map[string]any)}
}

// Len returns the number of keys.
func (s *Store) Len() int {
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s *Store) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Get returns the stored value for key.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Kind returns the variant stored under key.
func (s *Store) Kind(key string) Kind {
	return KindOf(s.values[key])
}

// Set stores v under key, replacing any variant. An empty string removes
// the key.
func (s *Store) Set(key string, v any) error {
	if KindOf(v) == KindNone {
		return fmt.Errorf("%w: %s=%T", ErrUnsupported, key, v)
	}
	if str, ok := v.(string); ok && str == "" {
		s.Delete(key)
		return nil
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
	return nil
}

// SetText applies a text update. The text is parsed as the variant already
// stored under key; unseen keys become strings. When parsing fails the old
// value is kept, a warning is logged and ErrCoerce is returned. An empty
// text removes the key.
func (s *Store) SetText(key, text string) error {
	if text == "" {
		s.Delete(key)
		return nil
	}
	kind := KindString
	if old, ok := s.values[key]; ok {
		kind = KindOf(old)
	}
	v, err := Parse(kind, text)
	if err != nil {
		s.logger.Warn("Rejected property update", "key", key, "value", text, "kind", kind.String(), "error", err)
		return fmt.Errorf("%s: %w", key, err)
	}
	return s.Set(key, v)
}

// Delete removes key.
func (s *Store) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Clear removes every key.
func (s *Store) Clear() {
	s.keys = nil
	s.values = make(map[string]any)
}

// Clone returns a shallow copy of the store.
func (s *Store) Clone() *Store {
	c := New(s.logger)
	for _, k := range s.keys {
		c.keys = append(c.keys, k)
		c.values[k] = s.values[k]
	}
	return c
}

// MergeMissing copies every key of from that s does not already hold.
func (s *Store) MergeMissing(from *Store) {
	for _, k := range from.keys {
		if _, ok := s.values[k]; ok {
			continue
		}
		s.keys = append(s.keys, k)
		s.values[k] = from.values[k]
	}
}

// Range calls fn for each key in order until fn returns false.
func (s *Store) Range(fn func(key string, v any) bool) {
	for _, k := range s.keys {
		if !fn(k, s.values[k]) {
			return
		}
	}
}

// Text returns the value under key formatted the way SetText parses it.
func (s *Store) Text(key string) string {
	v, ok := s.values[key]
	if !ok {
		return ""
	}
	return Format(v)
}

// Get returns the value under key as T, or the zero T when the key is
// missing or holds a different variant.
func Get[T any](s *Store, key string) T {
	var zero T
	if s == nil {
		return zero
	}
	v, ok := s.values[key].(T)
	if !ok {
		return zero
	}
	return v
}

// Parse converts text into the given variant.
func Parse(kind Kind, text string) (any, error) {
	switch kind {
	case KindString, KindNone:
		return text, nil
	case KindInt:
		v, err := strconv.ParseInt(strings.TrimSpace(text), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%w to int: %v", ErrCoerce, err)
		}
		return int32(v), nil
	case KindFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 32)
		if err != nil {
			return nil, fmt.Errorf("%w to float: %v", ErrCoerce, err)
		}
		return float32(v), nil
	case KindInts:
		parts := splitList(text)
		out := make([]int32, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseInt(p, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("%w to int[]: %v", ErrCoerce, err)
			}
			out[i] = int32(v)
		}
		return out, nil
	case KindFloats:
		parts := splitList(text)
		out := make([]float32, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("%w to float[]: %v", ErrCoerce, err)
			}
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w to %s", ErrCoerce, kind)
	}
}

// Format renders a stored value as text.
func Format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float32:
		return formatFloat(x)
	case []int32:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.FormatInt(int64(n), 10)
		}
		return strings.Join(parts, ",")
	case []float32:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = formatFloat(f)
		}
		return strings.Join(parts, ",")
	case []core.Camera:
		parts := make([]string, len(x))
		for i, c := range x {
			parts[i] = fmt.Sprintf("%d:%v", c.ID, c.Pose)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func splitList(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
