package protocol

import "errors"

var (
	ErrShortHeader  = errors.New("protocol: short header")
	ErrChecksum     = errors.New("protocol: header checksum mismatch")
	ErrShortPayload = errors.New("protocol: short payload")
	ErrTooLarge     = errors.New("protocol: payload too large")
)
