package notify

import (
	"errors"
	"testing"

	"github.com/extdeck/extdeck/pkg/fetch"
)

func TestFailureUsesUpstreamMessage(t *testing.T) {
	var rec Recorder
	err := &fetch.HTTPError{Status: 401, Message: "Invalid token"}
	Failure(&rec, "Failed to load tasks", err)

	last, ok := rec.Last()
	if !ok {
		t.Fatal("expected a toast")
	}
	if last.Style != StyleFailure || last.Title != "Failed to load tasks" || last.Message != "Invalid token" {
		t.Errorf("unexpected toast %+v", last)
	}
}

func TestMultiAndDrain(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, &b}
	Success(m, "Pinned", "Black card")
	Failure(m, "Failed", errors.New("boom"))

	if len(a.Toasts()) != 2 || len(b.Toasts()) != 2 {
		t.Fatalf("expected both recorders to receive 2 toasts")
	}
	drained := a.Drain()
	if len(drained) != 2 || len(a.Toasts()) != 0 {
		t.Errorf("Drain() should empty the recorder")
	}
	if drained[1].Message != "boom" {
		t.Errorf("unexpected message %q", drained[1].Message)
	}
}
