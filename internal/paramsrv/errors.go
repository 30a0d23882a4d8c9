package paramsrv

import "errors"

// Protocol-level failures. Handle returns them with a zero length and the
// transport answers with an error frame instead of a reply.
var (
	ErrMalformedRequest = errors.New("paramsrv: malformed request")
	ErrTooManyEntries   = errors.New("paramsrv: too many entries in request")
	ErrReplyTooSmall    = errors.New("paramsrv: reply buffer too small")
	ErrUnknownKind      = errors.New("paramsrv: unknown request kind")
)
