package hidpp

import (
	"context"
	"errors"
	"fmt"
)

// Battery is one battery reading.
type Battery struct {
	Percent  uint8
	Charging bool
	Feature  uint16 // feature that answered
}

func (b Battery) String() string {
	if b.Charging {
		return fmt.Sprintf("%d%% (charging)", b.Percent)
	}
	return fmt.Sprintf("%d%%", b.Percent)
}

// Battery reads the charge level. Devices with UNIFIED_BATTERY are asked
// through it; older ones through BATTERY_STATUS. Both requests are reads.
func (d *Device) Battery(ctx context.Context) (Battery, error) {
	idx, err := d.FeatureIndex(ctx, FeatureUnifiedBattery)
	switch {
	case err == nil:
		// getStatus: state of charge, level, flags, charging state
		resp, err := d.send(ctx, FeatureUnifiedBattery, idx, 0x01, true)
		if err != nil {
			return Battery{}, err
		}
		state := resp.Param(3)
		return Battery{
			Percent:  percent(resp.Param(0)),
			Charging: state >= 1 && state <= 3,
			Feature:  FeatureUnifiedBattery,
		}, nil
	case !errors.Is(err, ErrUnsupported):
		return Battery{}, err
	}

	idx, err = d.FeatureIndex(ctx, FeatureBatteryStatus)
	if err != nil {
		return Battery{}, err
	}
	// GetBatteryLevelStatus: level, next level, status
	resp, err := d.send(ctx, FeatureBatteryStatus, idx, 0x00, true)
	if err != nil {
		return Battery{}, err
	}
	status := resp.Param(2)
	return Battery{
		Percent:  percent(resp.Param(0)),
		Charging: status >= 1 && status <= 4,
		Feature:  FeatureBatteryStatus,
	}, nil
}

func percent(v byte) uint8 {
	if v > 100 {
		return 100
	}
	return v
}
