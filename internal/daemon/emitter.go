package daemon

import (
	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/session"
)

// logEmitter records session signals in the daemon log.
type logEmitter struct{}

func (logEmitter) SessionOpened(ev session.Opened) {
	logger.Info("Session opened",
		"id", ev.ID,
		"x", ev.Anchor.X,
		"y", ev.Anchor.Y,
		"strategy", ev.Anchor.Strategy,
		"profile", ev.Profile.Name,
		"class", ev.WindowClass,
		"resolve", ev.Resolve)
}

func (logEmitter) SliceHighlighted(id uint64, index int) {
	logger.Debug("Slice highlighted", "id", id, "index", index)
}

func (logEmitter) SessionOutcome(id uint64, o session.Outcome) {
	logger.Info("Session finished", "id", id, "outcome", o.String())
}

func (logEmitter) ActionResult(id uint64, r action.Outcome) {
	if r.Err != nil {
		logger.Warn("Action failed", "id", id, "label", r.Label, "kind", r.Kind, "err", r.Err)
		return
	}
	logger.Debug("Action done", "id", id, "label", r.Label, "kind", r.Kind, "elapsed", r.Elapsed)
}
