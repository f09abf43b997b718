package errors

import (
	"testing"
)

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := Annotatef(Trace(ErrUnresumableCheckpoint), "checkpoint[%d]", 42)
	if !IsUnresumableCheckpoint(wrapped) {
		t.Errorf("IsUnresumableCheckpoint(%v) = false", wrapped)
	}
	if IsStreamUnavailable(wrapped) {
		t.Errorf("IsStreamUnavailable(%v) = true", wrapped)
	}

	if !IsStreamUnavailable(Trace(ErrStreamUnavailable)) {
		t.Error("IsStreamUnavailable(Trace(ErrStreamUnavailable)) = false")
	}
}

func TestPredicatesRejectForeignErrors(t *testing.T) {
	err := New("some other failure")
	if IsUnresumableCheckpoint(err) || IsStreamUnavailable(err) {
		t.Errorf("predicates matched %v", err)
	}
	if IsUnresumableCheckpoint(nil) || IsStreamUnavailable(nil) {
		t.Error("predicates matched nil")
	}
}

func TestObserverErrorCarriesCause(t *testing.T) {
	cause := New("connection reset")
	err := NewObserverError(ErrCodeStreamUnavailable, cause)
	if !IsStreamUnavailable(err) {
		t.Errorf("IsStreamUnavailable(%v) = false", err)
	}
	if err.Error() != cause.Error() {
		t.Errorf("message = %q, want %q", err.Error(), cause.Error())
	}
}
