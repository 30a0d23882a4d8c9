// Package cdr owns the CDR (XCDR1) encode/decode primitives used on the
// parameter service wire.
//
// Ownership boundary:
// - 4-byte encapsulation header
// - primitive alignment relative to the end of the header
// - bounded writer over a caller-owned buffer (never grows, never overruns)
// - sequence count reserve/patch
// - mark/rewind for element-level truncation
//
// Replies are always little endian. Readers accept either byte order.
package cdr
