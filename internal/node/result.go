package node

import (
	"errors"
	"fmt"
)

// Result is the bring-up result code.
type Result int

const (
	ResultOK       Result = 0
	ResultError    Result = -1
	ResultNotReady Result = -2
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultNotReady:
		return "not_ready"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

var (
	ErrNotReady         = errors.New("node: not ready")
	ErrInvalidNode      = errors.New("node: invalid node")
	ErrInvalidService   = errors.New("node: invalid service")
	ErrDuplicateService = errors.New("node: service already declared")
	ErrUnknownService   = errors.New("node: no service for key expression")
)

// ResultOf maps an error from this package to its result code.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrNotReady):
		return ResultNotReady
	default:
		return ResultError
	}
}
