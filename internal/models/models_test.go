package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(Session{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "CandidateID", "not null")
	assertGormTag(t, typ, "ChannelID", "index:idx_channel_status")
	assertGormTag(t, typ, "Status", "default:active")
	assertGormTag(t, typ, "Status", "index:idx_channel_status")

	assertFieldType(t, typ, "EndedAt", "*time.Time")
	assertFieldType(t, typ, "StartedAt", "time.Time")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "SessionID", "index:idx_session_sequence")
	assertGormTag(t, typ, "Sequence", "index:idx_session_sequence")
	assertGormTag(t, typ, "Role", "not null")
	assertGormTag(t, typ, "Kind", "default:message")
	assertGormTag(t, typ, "Content", "type:mediumtext")

	assertFieldType(t, typ, "Sequence", "int")
}

func TestSessionState_Fields(t *testing.T) {
	typ := reflect.TypeOf(SessionState{})

	assertGormTag(t, typ, "SessionID", "primaryKey")
	assertGormTag(t, typ, "TurnCount", "default:0")
	assertFieldType(t, typ, "Coverage", "datatypes.JSON")

	if got := (SessionState{}).TableName(); got != "session_state" {
		t.Errorf("TableName() = %q, want %q", got, "session_state")
	}
}

func TestEvaluation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Evaluation{})

	assertGormTag(t, typ, "SessionID", "index")
	assertGormTag(t, typ, "ResultText", "type:mediumtext")
	assertFieldType(t, typ, "ResultJSON", "datatypes.JSON")
}
