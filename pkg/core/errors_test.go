package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorForStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{400, "Bad Request"},
		{401, "Unauthorized"},
		{500, "Internal Server Error"},
		{503, "Service Unavailable"},
		{418, "Unknown Error"},
		{404, "Unknown Error"},
	}
	for _, tt := range tests {
		err := ErrorForStatus(tt.code)
		if err.Code != tt.code {
			t.Errorf("ErrorForStatus(%d).Code = %d", tt.code, err.Code)
		}
		if err.Description != tt.want {
			t.Errorf("ErrorForStatus(%d).Description = %q, want %q", tt.code, err.Description, tt.want)
		}
	}
}

func TestNotSupported(t *testing.T) {
	err := NotSupported()
	if err.Code != 503 || err.Description != "Service Unavailable" {
		t.Errorf("NotSupported() = {%d, %q}", err.Code, err.Description)
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Err: fmt.Errorf("dial: %w", inner)}
	if !errors.Is(err, inner) {
		t.Error("TransportError does not unwrap to its cause")
	}
}

func TestParseErrorMessages(t *testing.T) {
	if got := MissingField("mute").Error(); got != `parse error: missing field "mute"` {
		t.Errorf("MissingField message = %q", got)
	}
	err := &ParseError{Err: errors.New("unexpected EOF")}
	if got := err.Error(); got != "parse error: unexpected EOF" {
		t.Errorf("ParseError message = %q", got)
	}
}
