package hidpp

import "context"

// divertedButtonsEvent is event 0 of the reprogrammable controls feature.
const divertedButtonsEvent byte = 0x00

// GestureButtonCID is the control ID of the thumb gesture button.
const GestureButtonCID uint16 = 0x00C3

// DivertedButtons extracts the control IDs currently held down from a
// divertedButtonsEvent notification. ok is false for any other report.
func DivertedButtons(msg Message, reprogIndex byte) (cids []uint16, ok bool) {
	if reprogIndex == 0 || msg.FeatureIndex != reprogIndex || msg.Function != divertedButtonsEvent || !msg.IsNotification() {
		return nil, false
	}
	for i := 0; i+1 < len(msg.Params) && i < 8; i += 2 {
		cid := uint16(msg.Params[i])<<8 | uint16(msg.Params[i+1])
		if cid == 0 {
			break
		}
		cids = append(cids, cid)
	}
	return cids, true
}

// ButtonWatcher turns diverted-button notifications into held/released
// transitions for one control ID. The divert itself is configured by
// external tooling; the watcher only reads.
type ButtonWatcher struct {
	dev   *Device
	index byte
	cid   uint16
	held  bool
}

// NewButtonWatcher resolves the reprogrammable controls feature index.
func NewButtonWatcher(ctx context.Context, dev *Device, cid uint16) (*ButtonWatcher, error) {
	idx, err := dev.FeatureIndex(ctx, FeatureReprogControl)
	if err != nil {
		return nil, err
	}
	return &ButtonWatcher{dev: dev, index: idx, cid: cid}, nil
}

// Feed reports a change of the watched control's state.
func (w *ButtonWatcher) Feed(msg Message) (pressed, changed bool) {
	cids, ok := DivertedButtons(msg, w.index)
	if !ok {
		return w.held, false
	}
	held := false
	for _, c := range cids {
		if c == w.cid {
			held = true
			break
		}
	}
	if held == w.held {
		return held, false
	}
	w.held = held
	return held, true
}
