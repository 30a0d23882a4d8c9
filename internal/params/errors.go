package params

import "errors"

// Per-parameter Set outcomes. The error text is sent to callers verbatim
// as the SetParametersResult reason.
var (
	ErrNotFound     = errors.New("parameter does not exist")
	ErrReadOnly     = errors.New("read-only")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrOutOfRange   = errors.New("out of range")
)

var (
	ErrUnknownType       = errors.New("params: unknown parameter type")
	ErrInvalidValue      = errors.New("params: invalid value")
	ErrInvalidName       = errors.New("params: invalid parameter name")
	ErrInvalidDescriptor = errors.New("params: invalid descriptor")
	ErrBatchFull         = errors.New("params: batch full")
)
