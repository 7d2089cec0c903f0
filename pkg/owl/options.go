package owl

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/owl/internal/parser"
)

// options is a parsed option string. Timeout is given in microseconds on
// the wire; every other token is kept for the server.
type options struct {
	timeout     time.Duration
	flags       map[string]string
	passthrough []parser.Token
}

func parseOptions(s string) (options, error) {
	o := options{timeout: DefaultTimeout, flags: make(map[string]string)}
	for _, t := range parser.Tokenize(s) {
		if t.Key == "timeout" {
			us, err := strconv.ParseInt(t.Value, 10, 64)
			if err != nil || us < 0 {
				return o, fmt.Errorf("%w: timeout=%q", ErrOption, t.Value)
			}
			o.timeout = time.Duration(us) * time.Microsecond
			continue
		}
		o.flags[t.Key] = t.Value
		o.passthrough = append(o.passthrough, t)
	}
	return o, nil
}

func (o options) enabled(key string) bool {
	v, ok := o.flags[key]
	return ok && v != "" && v != "0"
}

func (o options) rest() string {
	return parser.Join(o.passthrough)
}

// splitAddress parses "host[:offset]".
func splitAddress(address string) (string, int, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", 0, fmt.Errorf("%w: empty", ErrAddress)
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return strings.Trim(address, "[]"), 0, nil
	}
	offset, err := strconv.Atoi(port)
	if err != nil || offset < 0 || BasePort+offset > 65535 {
		return "", 0, fmt.Errorf("%w: offset %q", ErrAddress, port)
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: missing host", ErrAddress)
	}
	return host, offset, nil
}
