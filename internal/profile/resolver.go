package profile

import (
	"sync"
	"sync/atomic"

	"github.com/bnema/radialmx/internal/logger"
)

// Resolver answers which profile applies to a window class. Lookups never
// fail and never touch the disk; the table is replaced atomically.
type Resolver struct {
	table atomic.Pointer[Table]

	mu       sync.Mutex
	reported map[string]bool
}

// NewResolver starts with the builtin default only.
func NewResolver() *Resolver {
	r := &Resolver{reported: make(map[string]bool)}
	r.table.Store(NewTable(nil))
	return r
}

// Resolve returns the profile for class, else the default profile.
func (r *Resolver) Resolve(class string) Profile {
	t := r.table.Load()
	if class != "" {
		if p, ok := t.Lookup(class); ok {
			return p
		}
	}
	return t.Default()
}

// Table returns the current snapshot.
func (r *Resolver) Table() *Table {
	return r.table.Load()
}

// Swap installs a new table.
func (r *Resolver) Swap(t *Table) {
	if t == nil {
		return
	}
	r.table.Store(t)
	r.mu.Lock()
	r.reported = make(map[string]bool)
	r.mu.Unlock()
}

// Reload loads path and swaps it in. On failure the current table stays and
// the error is logged once until a load succeeds.
func (r *Resolver) Reload(path string) error {
	t, err := Load(path)
	if err != nil {
		r.ReportError(err)
		return err
	}
	r.Swap(t)
	return nil
}

// ReportError logs a configuration error unless the same error was already
// logged.
func (r *Resolver) ReportError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	r.mu.Lock()
	seen := r.reported[msg]
	r.reported[msg] = true
	r.mu.Unlock()
	if !seen {
		logger.Errorf("profiles: %v, keeping current profiles", err)
	}
}
