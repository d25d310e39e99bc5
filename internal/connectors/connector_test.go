package connectors

import (
	"context"
	"testing"
	"time"
)

type fakeAdapter struct {
	platform string
	started  bool
	stopped  bool
	startErr error
}

func (f *fakeAdapter) Platform() string { return f.platform }
func (f *fakeAdapter) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}
func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stopped = true
	return nil
}
func (f *fakeAdapter) State() State { return StateRunning }

func TestRegistry_RegisterGetStartStopAll(t *testing.T) {
	reg := NewRegistry()
	tg := &fakeAdapter{platform: "telegram"}
	dc := &fakeAdapter{platform: "discord"}
	reg.Register(tg)
	reg.Register(dc)

	if _, ok := reg.Get("slack"); ok {
		t.Error("expected unregistered platform to be absent")
	}
	got, ok := reg.Get("telegram")
	if !ok || got.Platform() != "telegram" {
		t.Error("expected to retrieve registered telegram adapter")
	}

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("unexpected error starting all: %v", err)
	}
	if !tg.started || !dc.started {
		t.Error("expected both adapters started")
	}

	reg.StopAll(context.Background())
	if !tg.stopped || !dc.stopped {
		t.Error("expected both adapters stopped")
	}
}

func TestBackoff_ReturnsFalseOnStopSignal(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	ok := Backoff(context.Background(), stop, 0, time.Hour, time.Hour)
	if ok {
		t.Error("expected Backoff to return false when stop is already closed")
	}
}

func TestBackoff_ReturnsTrueAfterShortDelay(t *testing.T) {
	stop := make(chan struct{})
	ok := Backoff(context.Background(), stop, 0, time.Millisecond, time.Second)
	if !ok {
		t.Error("expected Backoff to return true after its delay elapses")
	}
}

func TestBackoff_CapsAtMax(t *testing.T) {
	stop := make(chan struct{})
	start := time.Now()
	ok := Backoff(context.Background(), stop, 20, time.Millisecond, 5*time.Millisecond)
	elapsed := time.Since(start)
	if !ok {
		t.Fatal("expected Backoff to succeed")
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("expected backoff to be capped near max, took %v", elapsed)
	}
}
