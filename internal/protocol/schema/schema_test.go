package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/edgeparams/internal/protocol/tlv"
	"github.com/danmuck/edgeparams/internal/testutil/testlog"
)

func TestValidateQueryRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldKeyExpr, "0/talker/get_parameters/rcl_interfaces::srv::dds_::GetParameters_/TypeHashNotSupported"),
		tlv.Bytes(FieldPayload, []byte{0, 1, 0, 0}),
	}
	if err := Validate(MsgQuery, fields); err != nil {
		t.Fatalf("validate query: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldKeyExpr, "0/talker/list_parameters"),
		tlv.U32(FieldErrorCode, 2),
		tlv.String(FieldErrorMessage, "node not ready"),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(MsgError, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldKeyExpr, "0/talker/get_parameters"),
		tlv.Bytes(FieldPayload, nil),
	}
	err := Validate(MsgReply, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldAttachment || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldKeyExpr, "0/talker/get_parameters"),
		tlv.String(FieldPayload, "not bytes"),
	}
	err := Validate(MsgQuery, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldPayload || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(99, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.FieldID != 0 || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected error: %v", err)
	}
}
