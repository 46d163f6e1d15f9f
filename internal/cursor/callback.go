package cursor

import (
	"context"
	"sync"
)

// Callback receives positions pushed by a compositor script and hands them to
// whoever is waiting. Positions arriving with nobody waiting are dropped.
type Callback struct {
	mu      sync.Mutex
	waiters []chan Position
}

// NewCallback returns an empty callback sink.
func NewCallback() *Callback {
	return &Callback{}
}

// Deliver wakes every current waiter with a logical position.
func (c *Callback) Deliver(x, y float64) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	pos := Position{X: x, Y: y, Space: SpaceLogical}
	for _, w := range waiters {
		w <- pos
	}
}

// register must be called before triggering the script so a fast reply is not lost.
func (c *Callback) register() chan Position {
	ch := make(chan Position, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	return ch
}

func (c *Callback) unregister(ch chan Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// wait blocks for the next delivery on a channel obtained from register.
func (c *Callback) wait(ctx context.Context, ch chan Position) (Position, error) {
	defer c.unregister(ch)
	select {
	case pos := <-ch:
		return pos, nil
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
}
