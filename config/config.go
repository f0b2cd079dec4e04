// Package config loads the bank topology and pin assignment from YAML.
//
//	slots: 8
//	listen: ":2909"
//	spi:
//	  port: ""
//	  speed_hz: 40000000
//	gpio:
//	  backend: periph
//	  reset: GPIO25
//	  dc: GPIO24
//	  cs_clock: GPIO17
//	  cs_data: GPIO27
//	  power: GPIO22
//	displays:
//	  - slot: 0
//	    name: left
//	    preset: st7735-160
//	    rotation: 180
//	    mirror: none
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/hal"
	"github.com/zpin/lcdbank/rgb565"
	"github.com/zpin/lcdbank/st77xx"
)

// Config is the whole configuration file.
type Config struct {
	Slots  int    `yaml:"slots"`
	Listen string `yaml:"listen"`

	SPI  SPI  `yaml:"spi"`
	GPIO GPIO `yaml:"gpio"`

	// ByteOrder of pixel words on the wire: "big" or "little".
	ByteOrder string `yaml:"byte_order"`
	// ShiftDelay is held after every chip-select clock edge. Zero drives
	// the chain at GPIO speed; long or slow wiring may need 10ms.
	ShiftDelay  time.Duration `yaml:"shift_delay"`
	PowerSettle time.Duration `yaml:"power_settle"`

	// Font is a TrueType/OpenType file; empty selects Go Regular.
	Font     string `yaml:"font"`
	MediaDir string `yaml:"media_dir"`

	Displays []Display `yaml:"displays"`
}

// SPI selects the SPI port.
type SPI struct {
	Port    string `yaml:"port"`
	SpeedHz int64  `yaml:"speed_hz"`
}

// GPIO names the pins of the bank.
type GPIO struct {
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`

	Reset   string `yaml:"reset"`
	DC      string `yaml:"dc"`
	CSClock string `yaml:"cs_clock"`
	CSData  string `yaml:"cs_data"`
	Power   string `yaml:"power"`
}

// Display places one panel in a chain slot.
type Display struct {
	Slot     int    `yaml:"slot"`
	Name     string `yaml:"name"`
	Preset   string `yaml:"preset"`
	Rotation int    `yaml:"rotation"`
	Mirror   string `yaml:"mirror"`
	BGR      bool   `yaml:"bgr"`
	// ScanDir overrides the preset's scan direction.
	ScanDir string `yaml:"scan_dir"`
	// InitFill overrides the preset's init fill color, as rrggbb.
	InitFill string `yaml:"init_fill"`
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Slots:  8,
		Listen: ":2909",
		SPI: SPI{
			SpeedHz: 40_000_000,
		},
		GPIO: GPIO{
			Backend: string(hal.Periph),
			Chip:    "gpiochip0",
			Reset:   "GPIO25",
			DC:      "GPIO24",
			CSClock: "GPIO17",
			CSData:  "GPIO27",
		},
		ByteOrder:   "big",
		PowerSettle: 2 * time.Second,
		MediaDir:    "media",
	}
}

// Load reads the file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Slots <= 0 {
		errs = append(errs, fmt.Errorf("slots must be positive, got %d", c.Slots))
	}
	if c.SPI.SpeedHz < 0 {
		errs = append(errs, fmt.Errorf("spi.speed_hz must not be negative, got %d", c.SPI.SpeedHz))
	}
	if c.ShiftDelay < 0 {
		errs = append(errs, errors.New("shift_delay must not be negative"))
	}
	switch hal.Backend(c.GPIO.Backend) {
	case hal.Periph, hal.CDev, hal.DryRun:
	default:
		errs = append(errs, fmt.Errorf("unknown gpio.backend %q", c.GPIO.Backend))
	}
	for name, pin := range map[string]string{
		"reset":    c.GPIO.Reset,
		"dc":       c.GPIO.DC,
		"cs_clock": c.GPIO.CSClock,
		"cs_data":  c.GPIO.CSData,
	} {
		if pin == "" {
			errs = append(errs, fmt.Errorf("gpio.%s is required", name))
		}
	}
	if _, err := rgb565.ParseByteOrder(c.ByteOrder); err != nil {
		errs = append(errs, err)
	}

	used := map[int]bool{}
	for i, d := range c.Displays {
		if d.Slot < 0 || d.Slot >= c.Slots {
			errs = append(errs, fmt.Errorf("displays[%d]: slot %d outside 0..%d", i, d.Slot, c.Slots-1))
		}
		if used[d.Slot] {
			errs = append(errs, fmt.Errorf("displays[%d]: slot %d used twice", i, d.Slot))
		}
		used[d.Slot] = true
		if _, _, err := d.Panel(rgb565.BigEndian); err != nil {
			errs = append(errs, fmt.Errorf("displays[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HAL returns the board configuration.
func (c *Config) HAL() hal.Config {
	return hal.Config{
		Backend:  hal.Backend(c.GPIO.Backend),
		SPIPort:  c.SPI.Port,
		SPISpeed: physic.Frequency(c.SPI.SpeedHz) * physic.Hertz,
		Chip:     c.GPIO.Chip,
		Reset:    c.GPIO.Reset,
		DC:       c.GPIO.DC,
		CSClock:  c.GPIO.CSClock,
		CSData:   c.GPIO.CSData,
		Power:    c.GPIO.Power,
	}
}

// Order returns the configured wire byte order.
func (c *Config) Order() rgb565.ByteOrder {
	o, err := rgb565.ParseByteOrder(c.ByteOrder)
	if err != nil {
		return rgb565.BigEndian
	}
	return o
}

// Panel returns the panel options and canvas orientation for d.
func (d Display) Panel(order rgb565.ByteOrder) (st77xx.Opts, canvas.Orientation, error) {
	mirror, err := canvas.ParseMirror(d.Mirror)
	if err != nil {
		return st77xx.Opts{}, canvas.Orientation{}, err
	}
	o := canvas.Orientation{Rotation: canvas.Rotation(d.Rotation), Mirror: mirror}
	if err := o.Validate(); err != nil {
		return st77xx.Opts{}, canvas.Orientation{}, err
	}
	opts, err := st77xx.Preset(d.Preset, o.Rotation)
	if err != nil {
		return st77xx.Opts{}, canvas.Orientation{}, err
	}
	if d.ScanDir != "" {
		if opts.ScanDir, err = st77xx.ParseScanDir(d.ScanDir); err != nil {
			return st77xx.Opts{}, canvas.Orientation{}, err
		}
	}
	if d.InitFill != "" {
		if opts.InitFill, err = rgb565.ParseHex(d.InitFill); err != nil {
			return st77xx.Opts{}, canvas.Orientation{}, err
		}
	}
	opts.BGR = d.BGR
	opts.ByteOrder = order
	return opts, o, nil
}
