package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/radialmx/internal/logger"
)

// FallbackName labels results produced by the static center fallback.
const FallbackName = "static-center"

// Attempt records the result of one strategy invocation.
type Attempt struct {
	Strategy string
	Elapsed  time.Duration
	Err      error
}

// Result is the outcome of a resolution. Position is always logical.
type Result struct {
	Position Position
	Strategy string
	Elapsed  time.Duration
	Attempts []Attempt
}

// Resolver tries strategies in order and always returns a logical position.
type Resolver struct {
	strategies []Strategy
	timeouts   map[string]time.Duration
	budget     time.Duration
	layout     LayoutSource
	log        *log.Logger
}

// NewResolver builds a resolver. A strategy without a timeout entry may use
// whatever budget remains.
func NewResolver(layout LayoutSource, budget time.Duration, timeouts map[string]time.Duration, strategies ...Strategy) *Resolver {
	if budget <= 0 {
		budget = 50 * time.Millisecond
	}
	return &Resolver{
		strategies: strategies,
		timeouts:   timeouts,
		budget:     budget,
		layout:     layout,
		log:        logger.With("component", "cursor"),
	}
}

// Strategies returns the names in priority order, fallback last.
func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies)+1)
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return append(names, FallbackName)
}

// Resolve returns the first logical position a strategy confirms, or the
// primary monitor's logical center. It never returns later than the budget
// or the context deadline, whichever comes first.
func (r *Resolver) Resolve(ctx context.Context) Result {
	start := time.Now()
	deadline := start.Add(r.budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	res := Result{}
	for _, s := range r.strategies {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		timeout := r.timeouts[s.Name()]
		if timeout <= 0 || timeout > remaining {
			timeout = remaining
		}

		attemptStart := time.Now()
		pos, err := r.attempt(ctx, s, timeout)
		if err == nil && pos.Space != SpaceLogical {
			err = fmt.Errorf("unconfirmed coordinate space %s", pos.Space)
		}
		res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Elapsed: time.Since(attemptStart), Err: err})

		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				r.log.Debug("strategy unavailable", "strategy", s.Name())
			} else {
				r.log.Debug("strategy failed", "strategy", s.Name(), "err", err)
			}
			continue
		}

		res.Position = pos
		res.Strategy = s.Name()
		res.Elapsed = time.Since(start)
		r.log.Debug("cursor resolved", "strategy", s.Name(), "pos", pos, "elapsed", res.Elapsed)
		return res
	}

	x, y := r.layout.Layout().PrimaryCenter()
	res.Position = Position{X: x, Y: y, Space: SpaceLogical}
	res.Strategy = FallbackName
	res.Elapsed = time.Since(start)
	r.log.Debug("cursor fell back to primary center", "pos", res.Position, "elapsed", res.Elapsed)
	return res
}

type attemptResult struct {
	pos Position
	err error
}

// attempt runs one strategy with its own timeout. A strategy that ignores its
// context is abandoned and its late result discarded.
func (r *Resolver) attempt(ctx context.Context, s Strategy, timeout time.Duration) (Position, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptResult{err: fmt.Errorf("strategy panicked: %v", p)}
			}
		}()
		pos, err := s.Resolve(ctx)
		done <- attemptResult{pos: pos, err: err}
	}()

	select {
	case out := <-done:
		return out.pos, out.err
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
}
