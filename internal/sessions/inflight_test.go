package sessions

import (
	"context"
	"testing"
)

func TestInflight_BeginAndDone(t *testing.T) {
	f := NewInflight()
	ctx, id, done := f.Begin(context.Background())
	if id == "" {
		t.Fatal("expected a request id")
	}
	if f.Len() != 1 {
		t.Fatalf("expected 1 outstanding call, got %d", f.Len())
	}
	done()
	if f.Len() != 0 {
		t.Fatalf("expected no outstanding calls, got %d", f.Len())
	}
	if ctx.Err() == nil {
		t.Error("context should be released once done")
	}
}

func TestInflight_CancelAll(t *testing.T) {
	f := NewInflight()
	ctx1, _, done1 := f.Begin(context.Background())
	ctx2, id2, done2 := f.Begin(context.Background())
	defer done1()
	defer done2()

	f.Cancel(id2)
	if ctx2.Err() == nil || ctx1.Err() != nil {
		t.Fatal("Cancel should only cancel the named request")
	}

	f.CancelAll()
	if ctx1.Err() == nil {
		t.Error("CancelAll should cancel every request")
	}
}

func TestInflight_Close(t *testing.T) {
	f := NewInflight()
	ctx, _, done := f.Begin(context.Background())
	defer done()

	f.Close()
	f.Close()
	if ctx.Err() == nil {
		t.Error("Close should cancel outstanding requests")
	}

	late, _, lateDone := f.Begin(context.Background())
	defer lateDone()
	if late.Err() == nil {
		t.Error("Begin after Close should return a cancelled context")
	}
	if f.Len() != 0 {
		t.Errorf("closed tracker should not register calls, got %d", f.Len())
	}
}
