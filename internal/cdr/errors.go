package cdr

import "errors"

var (
	ErrBufferFull      = errors.New("cdr: buffer full")
	ErrTruncated       = errors.New("cdr: truncated data")
	ErrInvalidHeader   = errors.New("cdr: invalid encapsulation header")
	ErrInvalidBool     = errors.New("cdr: invalid bool value")
	ErrInvalidString   = errors.New("cdr: string missing terminator")
	ErrStringTooLong   = errors.New("cdr: string too long")
	ErrSequenceTooLong = errors.New("cdr: sequence exceeds bound")
)
