package internal

import (
	"context"
	"sync"
	"time"
)

// SaveFunc persists a canvas snapshot
type SaveFunc func(ctx context.Context, c *Canvas) error

// Debouncer coalesces canvas saves. Each Trigger restarts the delay and only
// the most recent snapshot is written when it expires.
type Debouncer struct {
	delay   time.Duration
	save    SaveFunc
	onError func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending *Canvas
	gen     uint64
	stopped bool
	saving  sync.Mutex
}

// NewDebouncer creates a debouncer writing through save after delay
func NewDebouncer(delay time.Duration, save SaveFunc) *Debouncer {
	if delay <= 0 {
		delay = time.Second
	}
	return &Debouncer{delay: delay, save: save}
}

// OnError registers a callback for failed background saves
func (d *Debouncer) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// Trigger schedules c to be saved, replacing any snapshot still waiting
func (d *Debouncer) Trigger(c *Canvas) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending = c.Clone()
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs when a timer expires. A timer that was superseded by a later
// Trigger does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	onError := d.onError
	d.mu.Unlock()

	if err := d.flush(context.Background(), gen); err != nil && onError != nil {
		onError(err)
	}
}

// Pending reports whether a snapshot is waiting to be written
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush writes the waiting snapshot now
func (d *Debouncer) Flush(ctx context.Context) error {
	return d.flush(ctx, 0)
}

// flush writes the waiting snapshot. A non-zero gen only matches the snapshot
// of that Trigger; the check happens under the same lock that takes it.
func (d *Debouncer) flush(ctx context.Context, gen uint64) error {
	d.saving.Lock()
	defer d.saving.Unlock()

	d.mu.Lock()
	if gen != 0 && gen != d.gen {
		d.mu.Unlock()
		return nil
	}
	c := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if c == nil {
		return nil
	}
	return d.save(ctx, c)
}

// Stop flushes the waiting snapshot and ignores later triggers
func (d *Debouncer) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return d.Flush(ctx)
}
