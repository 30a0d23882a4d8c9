package cdr

import (
	"encoding/binary"
	"math"
)

// HeaderLen is the size of the encapsulation header in front of every payload.
const HeaderLen = 4

// Encapsulation identifiers (first two header bytes, big endian on the wire).
const (
	EncapsulationBE uint16 = 0x0000
	EncapsulationLE uint16 = 0x0001
)

// Writer encodes little endian CDR into a fixed caller-owned buffer.
// The zero value is unusable; call NewWriter or Reset.
type Writer struct {
	buf    []byte
	off    int
	origin int
	limit  int
}

// Mark is a rewind point captured by Writer.Mark.
type Mark struct {
	off int
}

// NewWriter returns a writer over buf. Nothing is written until the caller
// writes the header or a primitive.
func NewWriter(buf []byte) *Writer {
	w := &Writer{}
	w.Reset(buf)
	return w
}

// Reset rebinds w to buf and clears offsets and reservations.
func (w *Writer) Reset(buf []byte) {
	w.buf = buf
	w.off = 0
	w.origin = 0
	w.limit = len(buf)
}

// WriteHeader writes the little endian encapsulation header at the current
// offset and moves the alignment origin behind it.
func (w *Writer) WriteHeader() error {
	if err := w.ensure(HeaderLen); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(w.buf[w.off:], EncapsulationLE)
	w.buf[w.off+2] = 0
	w.buf[w.off+3] = 0
	w.off += HeaderLen
	w.origin = w.off
	return nil
}

// Len is the number of bytes written so far.
func (w *Writer) Len() int {
	return w.off
}

// Bytes returns the written prefix of the underlying buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.off]
}

// Cap is the size of the underlying buffer.
func (w *Writer) Cap() int {
	return len(w.buf)
}

// Available is the number of bytes that can still be written before the
// current reservation.
func (w *Writer) Available() int {
	if w.limit < w.off {
		return 0
	}
	return w.limit - w.off
}

// Reserve holds back n bytes at the end of the buffer. Writes that would
// cross into the reservation fail with ErrBufferFull. Reserve(0) releases.
func (w *Writer) Reserve(n int) {
	if n < 0 {
		n = 0
	}
	w.limit = len(w.buf) - n
	if w.limit < 0 {
		w.limit = 0
	}
}

// Mark captures the current offset.
func (w *Writer) Mark() Mark {
	return Mark{off: w.off}
}

// Rewind discards everything written after m. Bytes already in the buffer
// past the mark are left in place but are no longer part of the output.
func (w *Writer) Rewind(m Mark) {
	if m.off < w.origin || m.off > w.off {
		return
	}
	w.off = m.off
}

func (w *Writer) ensure(n int) error {
	if n > w.limit-w.off {
		return ErrBufferFull
	}
	return nil
}

// pad computes the padding needed to align the next write to size.
func (w *Writer) pad(size int) int {
	rel := w.off - w.origin
	if rem := rel % size; rem != 0 {
		return size - rem
	}
	return 0
}

func (w *Writer) align(size int) error {
	p := w.pad(size)
	if p == 0 {
		return nil
	}
	if err := w.ensure(p); err != nil {
		return err
	}
	for i := 0; i < p; i++ {
		w.buf[w.off+i] = 0
	}
	w.off += p
	return nil
}

// alignedEnsure checks room for padding plus n bytes without writing.
func (w *Writer) alignedEnsure(size, n int) error {
	return w.ensure(w.pad(size) + n)
}

func (w *Writer) WriteUint8(v uint8) error {
	if err := w.ensure(1); err != nil {
		return err
	}
	w.buf[w.off] = v
	w.off++
	return nil
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteUint32(v uint32) error {
	if err := w.alignedEnsure(4, 4); err != nil {
		return err
	}
	_ = w.align(4)
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
	return nil
}

func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

func (w *Writer) WriteUint64(v uint64) error {
	if err := w.alignedEnsure(8, 8); err != nil {
		return err
	}
	_ = w.align(8)
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
	return nil
}

func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteString writes a CDR string: uint32 length including the NUL
// terminator, the bytes, then NUL. The write is all-or-nothing.
func (w *Writer) WriteString(s string) error {
	if uint64(len(s))+1 > math.MaxUint32 {
		return ErrStringTooLong
	}
	if err := w.alignedEnsure(4, 4+len(s)+1); err != nil {
		return err
	}
	_ = w.align(4)
	binary.LittleEndian.PutUint32(w.buf[w.off:], uint32(len(s)+1))
	w.off += 4
	copy(w.buf[w.off:], s)
	w.off += len(s)
	w.buf[w.off] = 0
	w.off++
	return nil
}

// WriteOctets writes a sequence<uint8>. The write is all-or-nothing.
func (w *Writer) WriteOctets(b []byte) error {
	if err := w.alignedEnsure(4, 4+len(b)); err != nil {
		return err
	}
	_ = w.align(4)
	binary.LittleEndian.PutUint32(w.buf[w.off:], uint32(len(b)))
	w.off += 4
	copy(w.buf[w.off:], b)
	w.off += len(b)
	return nil
}

// Sequence is an open sequence whose element count is patched on End.
type Sequence struct {
	w     *Writer
	at    int
	count uint32
}

// BeginSequence reserves the uint32 count slot and returns the open
// sequence. Elements are written directly to the writer; call Add after
// each complete element and End once done.
func (w *Writer) BeginSequence() (Sequence, error) {
	if err := w.WriteUint32(0); err != nil {
		return Sequence{}, err
	}
	return Sequence{w: w, at: w.off - 4}, nil
}

// Add counts one element written since the previous Add.
func (s *Sequence) Add() {
	s.count++
}

// Count is the number of elements added so far.
func (s *Sequence) Count() uint32 {
	return s.count
}

// End patches the element count into the reserved slot.
func (s *Sequence) End() {
	if s.w == nil {
		return
	}
	binary.LittleEndian.PutUint32(s.w.buf[s.at:], s.count)
}
