package device

import "time"

// Debouncer merges transitions closer together than Window.
//
// A release arriving within Window of its press is held back; a press
// during that hold cancels it as contact bounce. A press while already
// pressed is out of order and ignored.
//
// Callers Flush at the raw time before each Feed so a held release whose
// window already passed is published ahead of the next transition.
type Debouncer struct {
	Window time.Duration

	pressed     bool
	pressedAt   time.Time
	releasedAt  time.Time
	pending     bool
	pendingDue  time.Time
	pendingTime time.Time
}

// Verdict explains what Feed did with a raw transition.
type Verdict int

const (
	Emit Verdict = iota
	Held
	Merged
	OutOfOrder
)

// Feed applies one raw transition. When the verdict is Emit, kind is the
// event to publish.
func (d *Debouncer) Feed(raw RawButton) (kind EventKind, v Verdict) {
	if raw.Pressed {
		if d.pending && raw.Time.Before(d.pendingDue) {
			d.pending = false
			return Pressed, Merged
		}
		if d.pressed {
			return Pressed, OutOfOrder
		}
		if !d.releasedAt.IsZero() && raw.Time.Sub(d.releasedAt) < d.Window {
			return Pressed, Merged
		}
		d.pressed = true
		d.pressedAt = raw.Time
		return Pressed, Emit
	}

	if !d.pressed || d.pending {
		return Released, OutOfOrder
	}
	if elapsed := raw.Time.Sub(d.pressedAt); elapsed < d.Window {
		d.pending = true
		d.pendingDue = d.pressedAt.Add(d.Window)
		d.pendingTime = raw.Time
		return Released, Held
	}
	d.pressed = false
	d.releasedAt = raw.Time
	return Released, Emit
}

// Due returns when a held release must be flushed.
func (d *Debouncer) Due() (time.Time, bool) {
	return d.pendingDue, d.pending
}

// Flush publishes a held release once its window passed. The returned time
// is when the release actually happened.
func (d *Debouncer) Flush(now time.Time) (time.Time, bool) {
	if !d.pending || now.Before(d.pendingDue) {
		return time.Time{}, false
	}
	d.pending = false
	d.pressed = false
	d.releasedAt = d.pendingTime
	return d.pendingTime, true
}

// Reset forgets all state, used after the device is lost.
func (d *Debouncer) Reset() {
	*d = Debouncer{Window: d.Window}
}

// Pressed reports the debounced state.
func (d *Debouncer) Pressed() bool {
	return d.pressed
}
