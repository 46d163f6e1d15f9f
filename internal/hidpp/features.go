package hidpp

import (
	"errors"
	"fmt"
)

// Feature IDs.
const (
	FeatureRoot           uint16 = 0x0000
	FeatureSet            uint16 = 0x0001
	FeatureDeviceName     uint16 = 0x0005
	FeatureBatteryStatus  uint16 = 0x1000
	FeatureUnifiedBattery uint16 = 0x1004
	FeatureLEDControl     uint16 = 0x1300
	FeatureForceFeedback  uint16 = 0x8123
	FeatureReprogControl  uint16 = 0x1B04
)

// ErrBlocked is returned for writes to features that persist device state.
var ErrBlocked = errors.New("hidpp: feature is blocklisted")

// blocklist holds features whose commands change onboard or persistent
// state. They may be looked up and their notifications read, never written.
var blocklist = map[uint16]string{
	0x1B04: "reprogrammable controls (button remapping)",
	0x8060: "adjustable report rate",
	0x8100: "onboard profiles",
	0x8090: "mode status",
	0x8110: "mouse button spy",
	0x1BC0: "persistent remappable action",
	0x1815: "host info",
}

var allowlist = map[uint16]bool{
	FeatureRoot:           true,
	FeatureSet:            true,
	FeatureDeviceName:     true,
	FeatureBatteryStatus:  true,
	FeatureUnifiedBattery: true,
	FeatureLEDControl:     true,
	FeatureForceFeedback:  true,
}

// IsBlocked reports whether writes to the feature are forbidden.
func IsBlocked(feature uint16) bool {
	_, ok := blocklist[feature]
	return ok
}

// IsAllowed reports whether the feature is known to be runtime-only.
func IsAllowed(feature uint16) bool {
	return allowlist[feature]
}

// CheckWrite gates every write that addresses a feature.
func CheckWrite(feature uint16) error {
	if reason, ok := blocklist[feature]; ok {
		return fmt.Errorf("%w: 0x%04X %s", ErrBlocked, feature, reason)
	}
	if !IsAllowed(feature) {
		return fmt.Errorf("%w: 0x%04X is not on the runtime allowlist", ErrBlocked, feature)
	}
	return nil
}
