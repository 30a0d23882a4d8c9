package schema

import (
	"fmt"

	"github.com/danmuck/edgeparams/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgQuery uint32 = 1
	MsgReply uint32 = 2
	MsgError uint32 = 3
)

// Field IDs.
const (
	FieldKeyExpr    uint16 = 1
	FieldPayload    uint16 = 2
	FieldAttachment uint16 = 3

	FieldErrorCode    uint16 = 100
	FieldErrorMessage uint16 = 101
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgQuery: {
		{FieldKeyExpr, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
	},
	MsgReply: {
		{FieldKeyExpr, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
		{FieldAttachment, tlv.TypeBytes},
	},
	MsgError: {
		{FieldKeyExpr, tlv.TypeString},
		{FieldErrorCode, tlv.TypeU32},
		{FieldErrorMessage, tlv.TypeString},
	},
}

// Validate enforces required fields and their types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
