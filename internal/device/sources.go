package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/keys"
)

// SourcesFromConfig builds the sources to try in order.
func SourcesFromConfig(cfg config.DeviceConfig) ([]Source, error) {
	vendor, err := parseHexID(cfg.VendorID)
	if err != nil {
		return nil, fmt.Errorf("vendor_id: %w", err)
	}
	products, err := ProductIDs(cfg)
	if err != nil {
		return nil, err
	}

	code, ok := keys.Code(cfg.TriggerKey)
	if !ok {
		return nil, fmt.Errorf("unknown trigger key %q", cfg.TriggerKey)
	}

	evdevSrc := &EvdevSource{
		Path:       cfg.Path,
		DeviceName: cfg.Name,
		Vendor:     vendor,
		Products:   products,
		Code:       code,
	}
	hidppSrc := &HIDPPSource{
		Products: products,
		CID:      uint16(cfg.GestureCID),
	}

	switch cfg.Source {
	case "evdev":
		return []Source{evdevSrc}, nil
	case "hidpp":
		return []Source{hidppSrc}, nil
	case "", "auto":
		return []Source{hidppSrc, evdevSrc}, nil
	default:
		return nil, fmt.Errorf("unknown device source %q", cfg.Source)
	}
}

// ProductIDs parses the configured hex product ids.
func ProductIDs(cfg config.DeviceConfig) ([]uint16, error) {
	products := make([]uint16, 0, len(cfg.ProductIDs))
	for _, p := range cfg.ProductIDs {
		id, err := parseHexID(p)
		if err != nil {
			return nil, fmt.Errorf("product_ids: %w", err)
		}
		products = append(products, id)
	}
	return products, nil
}

func parseHexID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
