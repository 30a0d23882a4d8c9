package paramsrv

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/rcl"
)

const (
	// count slot plus worst-case alignment
	maxSeqHeaderSize = 3 + 4
	// bool, string alignment, empty string length and NUL
	minSetResultSize = 1 + 3 + 4 + 1
)

// minReplySize is the smallest reply that carries an empty result for kind.
func minReplySize(kind rcl.Kind) int {
	if kind == rcl.KindListParameters {
		// names count, then the prefixes count held back while names stream
		return cdr.HeaderLen + 4 + maxSeqHeaderSize
	}
	return cdr.HeaderLen + 4
}

// element writes one sequence element transactionally. ok is false when
// the element did not fit, in which case nothing was written. Any other
// write failure is returned after rewinding.
func element(w *cdr.Writer, write func() error) (ok bool, err error) {
	m := w.Mark()
	if err := write(); err != nil {
		w.Rewind(m)
		if errors.Is(err, cdr.ErrBufferFull) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func replyTooSmall(err error) error {
	return fmt.Errorf("%w: %w", ErrReplyTooSmall, err)
}
