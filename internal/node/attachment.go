package node

import (
	"encoding/binary"
	"fmt"
)

// GIDSize is the length of an rmw global identifier.
const GIDSize = 16

// AttachmentLen is the packed attachment size.
const AttachmentLen = 8 + 8 + 1 + GIDSize

// Attachment is the rmw metadata sent alongside every reply: a per-service
// sequence number, a timestamp in nanoseconds and the sender GID.
type Attachment struct {
	Sequence int64
	Time     int64
	GID      [GIDSize]byte
}

// MarshalBinary packs the attachment little endian with no padding.
func (a Attachment) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AttachmentLen)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.Sequence))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.Time))
	buf[16] = GIDSize
	copy(buf[17:], a.GID[:])
	return buf, nil
}

func (a *Attachment) UnmarshalBinary(b []byte) error {
	if len(b) < 17 {
		return fmt.Errorf("node: attachment too short: %d", len(b))
	}
	gidSize := int(b[16])
	if gidSize > GIDSize || len(b) != 17+gidSize {
		return fmt.Errorf("node: attachment gid size %d with %d bytes", gidSize, len(b))
	}
	a.Sequence = int64(binary.LittleEndian.Uint64(b[0:8]))
	a.Time = int64(binary.LittleEndian.Uint64(b[8:16]))
	a.GID = [GIDSize]byte{}
	copy(a.GID[:], b[17:])
	return nil
}
