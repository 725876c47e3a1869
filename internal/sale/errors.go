package sale

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode marks a malformed or unsupported asset payload. Fatal for the event.
	ErrDecode = errors.New("decode asset")
	// ErrUpstream marks a failed block, receipt, symbol or price lookup.
	ErrUpstream = errors.New("upstream unavailable")
)

// DecodeError locates a decode failure within a transaction.
type DecodeError struct {
	TxHash   string
	LogIndex uint
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tx %s log %d: %v", e.TxHash, e.LogIndex, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for every DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// UpstreamError names the lookup that failed.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// IsDecodeError reports whether err was caused by an undecodable payload.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

// IsUpstreamError reports whether err was caused by an external lookup.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstream)
}

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
