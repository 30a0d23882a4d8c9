package params

// MaxRequestStrings caps names, pairs or prefixes in a single request.
const MaxRequestStrings = 50

// Batch is a fixed-capacity list backed by an array of MaxRequestStrings
// entries. It never grows.
type Batch[T any] struct {
	n     int
	items [MaxRequestStrings]T
}

// Append adds v, failing with ErrBatchFull at capacity.
func (b *Batch[T]) Append(v T) error {
	if b.n >= len(b.items) {
		return ErrBatchFull
	}
	b.items[b.n] = v
	b.n++
	return nil
}

func (b *Batch[T]) Len() int {
	return b.n
}

// Items returns the filled prefix. The slice aliases the batch.
func (b *Batch[T]) Items() []T {
	return b.items[:b.n]
}

// Reset zeroes filled entries so the batch holds no references.
func (b *Batch[T]) Reset() {
	var zero T
	for i := 0; i < b.n; i++ {
		b.items[i] = zero
	}
	b.n = 0
}
