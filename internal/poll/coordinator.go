// Package poll drives the periodic register read for one device and owns
// the resulting snapshot. One goroutine runs the cycle: timer ticks and
// manual refreshes funnel into the same loop, so two polls can never be in
// flight at once.
package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mhartig/idmbridge/internal/registers"
)

const DefaultInterval = 30 * time.Second

// Snapshot is the point-in-time decoded register state. It is replaced
// wholesale on every successful poll and never mutated; consumers must
// treat Values as read-only. After a failed poll the previous Values are
// retained and Available is false.
type Snapshot struct {
	Values    registers.Values
	Available bool
	UpdatedAt time.Time
}

// Fetcher reads the full active register set once.
type Fetcher interface {
	Fetch(ctx context.Context) (registers.Values, error)
}

type Coordinator struct {
	name     string
	fetch    Fetcher
	interval time.Duration

	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]func(Snapshot)
	nextID int

	refreshCh chan chan error
}

func New(name string, f Fetcher, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		name:      name,
		fetch:     f,
		interval:  interval,
		subs:      make(map[int]func(Snapshot)),
		refreshCh: make(chan chan error),
	}
}

// Snapshot returns the current snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe registers a notification callback and returns its remover.
// Callbacks run on the poll goroutine and must not block.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Refresh requests an out-of-band poll and waits for its result. Used
// right after command writes.
func (c *Coordinator) Refresh(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.refreshCh <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls once immediately, then on every tick and refresh request until
// ctx is cancelled. A tick arriving while a poll is in flight is dropped by
// the ticker, not queued.
func (c *Coordinator) Run(ctx context.Context) error {
	c.poll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.poll(ctx)
		case reply := <-c.refreshCh:
			reply <- c.poll(ctx)
		}
	}
}

func (c *Coordinator) poll(ctx context.Context) error {
	values, err := c.fetch.Fetch(ctx)

	c.mu.Lock()
	if err != nil {
		// Keep the previous values; only the availability flag moves.
		wasAvailable := c.snap.Available
		c.snap.Available = false
		snap := c.snap
		subs := c.subscribers()
		c.mu.Unlock()

		log.Printf("poll %s: %v", c.name, err)
		if wasAvailable {
			for _, fn := range subs {
				fn(snap)
			}
		}
		return err
	}

	c.snap = Snapshot{Values: values, Available: true, UpdatedAt: time.Now()}
	snap := c.snap
	subs := c.subscribers()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// subscribers copies the callback set. Callers hold c.mu.
func (c *Coordinator) subscribers() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}
