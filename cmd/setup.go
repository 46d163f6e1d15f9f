package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/radialmx/internal/config"
	"github.com/bnema/radialmx/internal/device"
	"github.com/bnema/radialmx/internal/hidpp"
	"github.com/bnema/radialmx/internal/keys"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Select the trigger device interactively",
	Long: `Select how radialmx observes the gesture button and which device carries it,
then save the choice to the configuration file.

The hidpp source talks to the mouse directly and can drive haptics. The evdev
source reads a key the gesture button has been diverted to, for instance with
Solaar or logiops.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// triggerDevice is an input device that can report the trigger key.
type triggerDevice struct {
	Path        string
	Name        string
	Vendor      uint16
	Descriptive string
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	fmt.Println(ui.FormatHeader("RADIALMX SETUP", config.GetConfigPath()))

	products, err := device.ProductIDs(cfg.Device)
	if err != nil {
		return err
	}
	candidates, err := hidpp.Find(products)
	if err != nil {
		logger.Debugf("HID++ enumeration failed: %v", err)
	}
	for _, c := range candidates {
		fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("%s HID++ %s (%s) at %s", ui.IconSuccess, c.Product, c.Conn, c.Path)))
	}

	source := cfg.Device.Source
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Trigger source").
				Description("How the gesture button press is observed").
				Options(
					huh.NewOption("auto (HID++ first, then evdev)", "auto"),
					huh.NewOption("hidpp (direct, with haptics)", "hidpp"),
					huh.NewOption("evdev (diverted key)", "evdev"),
				).
				Value(&source),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	viper.Set("device.source", source)

	if source != "hidpp" {
		dev, err := selectTriggerDevice(cfg.Device.TriggerKey)
		if err != nil {
			if source == "evdev" {
				return err
			}
			logger.Warnf("No evdev fallback selected: %v", err)
		} else {
			viper.Set("device.name", dev.Name)
			viper.Set("device.vendor_id", fmt.Sprintf("%04x", dev.Vendor))
			viper.Set("device.path", "")
			fmt.Println(ui.SuccessStyle.Render(ui.IconSuccess + " Selected " + dev.Descriptive))
		}
	}

	if source != "evdev" && len(candidates) > 0 {
		var restrict bool
		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Restrict HID++ to the detected devices?").
					Description("Other Logitech receivers will be ignored").
					Value(&restrict),
			),
		)
		if err := confirm.Run(); err != nil {
			return fmt.Errorf("setup cancelled: %w", err)
		}
		if restrict {
			ids := make([]string, 0, len(candidates))
			for _, c := range candidates {
				ids = append(ids, fmt.Sprintf("%04x", c.ProductID))
			}
			viper.Set("device.product_ids", ids)
		}
	}

	if err := config.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	fmt.Println(ui.SuccessStyle.Render(ui.IconSuccess + " Device configuration saved"))
	fmt.Println(ui.SubtleStyle.Render("Run 'radialmx doctor' to check the rest of the environment"))
	return nil
}

func selectTriggerDevice(triggerKey string) (triggerDevice, error) {
	code, ok := keys.Code(triggerKey)
	if !ok {
		return triggerDevice{}, fmt.Errorf("unknown trigger key %q", triggerKey)
	}

	evdevices, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return triggerDevice{}, fmt.Errorf("failed to list input devices: %w", err)
	}
	devices := triggerDevices(evdevices, code)
	for _, dev := range evdevices {
		dev.File.Close()
	}

	if len(devices) == 0 {
		return triggerDevice{}, fmt.Errorf("no readable device reports %s", triggerKey)
	}
	if len(devices) == 1 {
		logger.Infof("Auto-selected trigger device: %s", devices[0].Descriptive)
		return devices[0], nil
	}

	options := make([]huh.Option[int], len(devices))
	for i, dev := range devices {
		options[i] = huh.NewOption(dev.Descriptive, i)
	}

	var selected int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Select Trigger Device").
				Description(fmt.Sprintf("Devices reporting %s", triggerKey)).
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return triggerDevice{}, fmt.Errorf("device selection cancelled: %w", err)
	}
	return devices[selected], nil
}

// triggerDevices keeps the devices advertising code, Logitech devices first.
func triggerDevices(evdevices []*evdev.InputDevice, code uint16) []triggerDevice {
	var logitech, others []triggerDevice
	for _, dev := range evdevices {
		if !reportsKey(dev, code) {
			continue
		}
		td := triggerDevice{
			Path:        dev.Fn,
			Name:        strings.TrimSpace(dev.Name),
			Vendor:      dev.Vendor,
			Descriptive: fmt.Sprintf("%s (%s, %04x:%04x)", strings.TrimSpace(dev.Name), dev.Fn, dev.Vendor, dev.Product),
		}
		if dev.Vendor == hidpp.VendorLogitech {
			logitech = append(logitech, td)
		} else {
			others = append(others, td)
		}
	}
	return append(logitech, others...)
}

func reportsKey(dev *evdev.InputDevice, code uint16) bool {
	for _, c := range dev.CapabilitiesFlat[evdev.EV_KEY] {
		if c == int(code) {
			return true
		}
	}
	return false
}
