package battery

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/radialmx/internal/hidpp"
)

// HIDPPOpener opens the first candidate that answers a battery query.
func HIDPPOpener(products []uint16) Opener {
	return func(ctx context.Context) (Device, error) {
		candidates, err := hidpp.Find(products)
		if err != nil {
			return nil, err
		}
		var errs []error
		for _, c := range candidates {
			dev, err := hidpp.Open(ctx, c)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, err := dev.Battery(ctx); err != nil {
				dev.Close()
				errs = append(errs, fmt.Errorf("%s: %w", c.Path, err))
				continue
			}
			return dev, nil
		}
		return nil, errors.Join(errs...)
	}
}
