package cdr

import (
	"encoding/binary"
	"math"
)

// Reader decodes CDR from a byte slice in either byte order.
type Reader struct {
	buf    []byte
	off    int
	origin int
	order  binary.ByteOrder
}

// NewReader returns a little endian reader over raw CDR with no header.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, order: binary.LittleEndian}
}

// NewEncapsulatedReader parses the encapsulation header and returns a
// reader positioned at the first payload byte.
func NewEncapsulatedReader(buf []byte) (*Reader, error) {
	if len(buf) < HeaderLen {
		return nil, ErrTruncated
	}
	r := &Reader{buf: buf, off: HeaderLen, origin: HeaderLen}
	switch binary.BigEndian.Uint16(buf[0:2]) {
	case EncapsulationLE:
		r.order = binary.LittleEndian
	case EncapsulationBE:
		r.order = binary.BigEndian
	default:
		return nil, ErrInvalidHeader
	}
	return r, nil
}

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset is the absolute read position.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) skipPad(size int) error {
	rel := r.off - r.origin
	if rem := rel % size; rem != 0 {
		p := size - rem
		if p > r.Remaining() {
			return ErrTruncated
		}
		r.off += p
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.skipPad(4); err != nil {
		return 0, err
	}
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.skipPad(8); err != nil {
		return 0, err
	}
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadString reads a CDR string. A zero length is accepted as "".
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if b[n-1] != 0 {
		return "", ErrInvalidString
	}
	return string(b[:n-1]), nil
}

// ReadOctets reads a sequence<uint8> into a fresh slice.
func (r *Reader) ReadOctets() ([]byte, error) {
	n, err := r.ReadSequenceLen(0, 1)
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadSequenceLen reads a sequence count. max > 0 bounds the count and
// fails with ErrSequenceTooLong before any element is read. minElem is the
// smallest encoded element size used to reject counts the remaining bytes
// cannot hold.
func (r *Reader) ReadSequenceLen(max int, minElem int) (int, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	if max > 0 && uint64(n) > uint64(max) {
		return 0, ErrSequenceTooLong
	}
	if minElem < 1 {
		minElem = 1
	}
	if uint64(n)*uint64(minElem) > uint64(r.Remaining()) {
		return 0, ErrTruncated
	}
	return int(n), nil
}
