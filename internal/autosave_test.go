package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []*Canvas
	err   error
}

func (r *recordingSaver) save(ctx context.Context, c *Canvas) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, c)
	return r.err
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestDebouncerCoalescesTriggers(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(30*time.Millisecond, saver.save)

	c := NewCanvas("p1")
	for i := range 5 {
		c.Viewport.X = float64(i)
		d.Trigger(c)
	}
	if !d.Pending() {
		t.Fatal("expected a pending snapshot")
	}

	deadline := time.Now().Add(2 * time.Second)
	for saver.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	if saver.count() != 1 {
		t.Fatalf("expected a single save, got %d", saver.count())
	}
	if got := saver.saved[0].Viewport.X; got != 4 {
		t.Fatalf("expected the latest snapshot, got viewport x %v", got)
	}
	if d.Pending() {
		t.Fatal("expected nothing pending after save")
	}
}

func TestDebouncerStaleTimerKeepsNewerSnapshotWaiting(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(time.Hour, saver.save)
	defer d.Stop(context.Background())

	c := NewCanvas("p1")
	d.Trigger(c)
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()

	c.Viewport.X = 7
	d.Trigger(c)
	d.fire(stale)

	if saver.count() != 0 {
		t.Fatalf("expected the newer snapshot to wait for its own delay, got %d saves", saver.count())
	}
	if !d.Pending() {
		t.Fatal("expected the newer snapshot to still be pending")
	}
}

func TestDebouncerSnapshotIsCopied(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(time.Hour, saver.save)

	c := NewCanvas("p1")
	d.Trigger(c)
	c.Viewport.X = 99

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if saver.saved[0].Viewport.X != 0 {
		t.Fatal("expected later edits not to leak into the queued snapshot")
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(time.Hour, saver.save)

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush without pending: %v", err)
	}
	if saver.count() != 0 {
		t.Fatal("expected no save without a pending snapshot")
	}

	d.Trigger(NewCanvas("p1"))
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if saver.count() != 1 {
		t.Fatalf("expected Stop to flush, got %d saves", saver.count())
	}

	d.Trigger(NewCanvas("p1"))
	if d.Pending() {
		t.Fatal("expected triggers after Stop to be ignored")
	}
}

func TestDebouncerReportsBackgroundErrors(t *testing.T) {
	saver := &recordingSaver{err: errors.New("db locked")}
	d := NewDebouncer(5*time.Millisecond, saver.save)

	errc := make(chan error, 1)
	d.OnError(func(err error) { errc <- err })
	d.Trigger(NewCanvas("p1"))

	select {
	case err := <-errc:
		if err.Error() != "db locked" {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected background save error to be reported")
	}
}
