package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/edgeparams/internal/protocol/frame"
	"github.com/danmuck/edgeparams/internal/protocol/schema"
	"github.com/danmuck/edgeparams/internal/protocol/tlv"
)

var ErrUnexpectedMessage = errors.New("session: unexpected message type")

// Error codes carried by error frames.
const (
	ErrorCodeMalformed      uint32 = 1
	ErrorCodeUnknownService uint32 = 2
	ErrorCodeNotReady       uint32 = 3
	ErrorCodeHandler        uint32 = 4
	ErrorCodeBusy           uint32 = 5
)

// Query is one service request addressed by key expression.
type Query struct {
	KeyExpr string
	Payload []byte
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.KeyExpr) == "" {
		return fmt.Errorf("query missing key_expr")
	}
	return nil
}

// Reply carries the CDR reply and the rmw attachment bytes.
type Reply struct {
	KeyExpr    string
	Payload    []byte
	Attachment []byte
}

// ErrorReply reports a query that produced no reply bytes.
type ErrorReply struct {
	KeyExpr string
	Code    uint32
	Message string
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("session: remote error code=%d key_expr=%q: %s", e.Code, e.KeyExpr, e.Message)
}

func EncodeQueryFrame(messageID uint64, q Query) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return encodeFrame(messageID, schema.MsgQuery, 0, []tlv.Field{
		tlv.String(schema.FieldKeyExpr, q.KeyExpr),
		tlv.Bytes(schema.FieldPayload, q.Payload),
	})
}

func DecodeQueryFrame(f frame.Frame) (Query, error) {
	fields, err := decodeFields(f, schema.MsgQuery)
	if err != nil {
		return Query{}, err
	}
	return Query{
		KeyExpr: getString(fields, schema.FieldKeyExpr),
		Payload: getBytes(fields, schema.FieldPayload),
	}, nil
}

func EncodeReplyFrame(messageID uint64, r Reply) ([]byte, error) {
	return encodeFrame(messageID, schema.MsgReply, frame.FlagIsResponse, []tlv.Field{
		tlv.String(schema.FieldKeyExpr, r.KeyExpr),
		tlv.Bytes(schema.FieldPayload, r.Payload),
		tlv.Bytes(schema.FieldAttachment, r.Attachment),
	})
}

func DecodeReplyFrame(f frame.Frame) (Reply, error) {
	fields, err := decodeFields(f, schema.MsgReply)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		KeyExpr:    getString(fields, schema.FieldKeyExpr),
		Payload:    getBytes(fields, schema.FieldPayload),
		Attachment: getBytes(fields, schema.FieldAttachment),
	}, nil
}

func EncodeErrorFrame(messageID uint64, e ErrorReply) ([]byte, error) {
	return encodeFrame(messageID, schema.MsgError, frame.FlagIsResponse|frame.FlagIsError, []tlv.Field{
		tlv.String(schema.FieldKeyExpr, e.KeyExpr),
		tlv.U32(schema.FieldErrorCode, e.Code),
		tlv.String(schema.FieldErrorMessage, e.Message),
	})
}

func DecodeErrorFrame(f frame.Frame) (ErrorReply, error) {
	fields, err := decodeFields(f, schema.MsgError)
	if err != nil {
		return ErrorReply{}, err
	}
	codeField, _ := tlv.GetField(fields, schema.FieldErrorCode)
	code, err := tlv.U32FromBytes(codeField.Value)
	if err != nil {
		return ErrorReply{}, err
	}
	return ErrorReply{
		KeyExpr: getString(fields, schema.FieldKeyExpr),
		Code:    code,
		Message: getString(fields, schema.FieldErrorMessage),
	}, nil
}

// DecodeResponse decodes a reply or error frame. An error frame is
// returned as *ErrorReply.
func DecodeResponse(f frame.Frame) (Reply, error) {
	switch f.Header.MessageType {
	case schema.MsgReply:
		return DecodeReplyFrame(f)
	case schema.MsgError:
		e, err := DecodeErrorFrame(f)
		if err != nil {
			return Reply{}, err
		}
		return Reply{}, &e
	default:
		return Reply{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, f.Header.MessageType)
	}
}

// ReadFrame reads one framed message from the stream.
func ReadFrame(r io.Reader, limits frame.Limits) (frame.Frame, error) {
	return frame.ReadFrame(r, limits)
}

func encodeFrame(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFields(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("%w: got %d want %d", ErrUnexpectedMessage, f.Header.MessageType, messageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func getString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func getBytes(fields []tlv.Field, id uint16) []byte {
	f, _ := tlv.GetField(fields, id)
	return f.Value
}
