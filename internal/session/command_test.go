package session

import (
	"errors"
	"testing"

	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

func TestResponseHeaderCaseInsensitive(t *testing.T) {
	r := &Response{Headers: []wire.Header{{Name: "Content-Type", Value: "application/sdp"}}}
	if got := r.Header("content-type"); got != "application/sdp" {
		t.Fatalf("Header lookup case-insensitive failed, got %q", got)
	}
	if got := r.Header("Session"); got != "" {
		t.Fatalf("expected empty string for missing header, got %q", got)
	}
}

func TestStatusErrorUnwrapsToSentinel(t *testing.T) {
	err := &StatusError{Status: wire.StatusNotFound}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatal("StatusError should unwrap to ErrUnexpectedStatus")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should recover the StatusError")
	}
	if se.Status != wire.StatusNotFound {
		t.Fatalf("recovered status %v, want %v", se.Status, wire.StatusNotFound)
	}
}
