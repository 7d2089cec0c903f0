package owl

import "errors"

var (
	ErrNotOpen      = errors.New("owl: session not open")
	ErrTimeout      = errors.New("owl: timeout")
	ErrResolve      = errors.New("owl: cannot resolve host")
	ErrConnect      = errors.New("owl: connect failed")
	ErrAddress      = errors.New("owl: invalid address")
	ErrOption       = errors.New("owl: invalid option")
	ErrNotSupported = errors.New("owl: not supported by server")
	ErrSlave        = errors.New("owl: not permitted in slave mode")
	ErrBusy         = errors.New("owl: session is flushing")
)

// ServerError is an error the server reported while the session was
// connecting or initializing.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "owl: server error: " + e.Message
}
