package rl

import (
	"context"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestBindings_TakeConsumes(t *testing.T) {
	b := NewBindings(time.Hour)
	b.Put("p1", Binding{State: "s", Action: ActionDelay30, AdmittedAt: t0})

	got, ok := b.Take("p1", t0.Add(time.Minute))
	if !ok || got.Action != ActionDelay30 {
		t.Fatalf("expected binding, got %+v %v", got, ok)
	}
	if _, ok := b.Take("p1", t0.Add(time.Minute)); ok {
		t.Error("expected second take to miss")
	}
}

func TestBindings_ExpiredTakeMisses(t *testing.T) {
	b := NewBindings(time.Hour)
	b.Put("p1", Binding{AdmittedAt: t0})

	if _, ok := b.Take("p1", t0.Add(61*time.Minute)); ok {
		t.Error("expected expired binding to be reported missing")
	}
	if b.Len() != 0 {
		t.Errorf("expected expired binding to be dropped, got %d", b.Len())
	}
}

func TestBindings_Sweep(t *testing.T) {
	b := NewBindings(time.Hour)
	b.Put("old", Binding{AdmittedAt: t0})
	b.Put("new", Binding{AdmittedAt: t0.Add(50 * time.Minute)})

	if n := b.Sweep(t0.Add(90 * time.Minute)); n != 1 {
		t.Errorf("expected 1 swept, got %d", n)
	}
	if _, ok := b.Peek("new"); !ok {
		t.Error("expected fresh binding to survive")
	}
}

func TestBindings_ZeroTTLNeverExpires(t *testing.T) {
	b := NewBindings(0)
	b.Put("p1", Binding{AdmittedAt: t0})

	if n := b.Sweep(t0.Add(1000 * time.Hour)); n != 0 {
		t.Errorf("expected nothing swept, got %d", n)
	}
}

func TestBindings_Evict(t *testing.T) {
	b := NewBindings(time.Hour)
	b.Put("a", Binding{})
	b.Put("b", Binding{})
	b.Put("c", Binding{})

	b.Evict("a", "c", "missing")
	if b.Len() != 1 {
		t.Errorf("expected 1 binding left, got %d", b.Len())
	}
}

func TestBindings_RunStopsOnCancel(t *testing.T) {
	b := NewBindings(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, time.Millisecond, time.Now)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
