package codec

import (
	"errors"
	"fmt"
)

// Framing errors. A frame that produces any of these cannot be trusted and the
// session treats it as fatal.
var (
	ErrMissingTag     = errors.New("codec: missing or zero tag")
	ErrMalformedTag   = errors.New("codec: tag is not numeric")
	ErrMissingEquals  = errors.New("codec: field has no '=' separator")
	ErrEmptyValue     = errors.New("codec: field has an empty value")
	ErrMissingSOH     = errors.New("codec: message does not end with SOH")
	ErrGarbled        = errors.New("codec: garbled frame")
	ErrBadBodyLength  = errors.New("codec: body length does not match frame")
	ErrBadChecksum    = errors.New("codec: checksum mismatch")
	ErrFrameTooLarge  = errors.New("codec: frame exceeds inbound buffer size")
	ErrBufferTooSmall = errors.New("codec: destination buffer too small")
	ErrFormat         = errors.New("codec: malformed field value")
)

// FormatError reports a field whose value cannot be decoded as the requested
// kind. It unwraps to ErrFormat.
type FormatError struct {
	Tag   int
	Kind  string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("codec: tag %d value %q is not a valid %s", e.Tag, e.Value, e.Kind)
}

func (e *FormatError) Unwrap() error {
	return ErrFormat
}

func formatError(tag int, kind string, value []byte) error {
	return &FormatError{Tag: tag, Kind: kind, Value: string(value)}
}
