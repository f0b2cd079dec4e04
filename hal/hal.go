// Package hal is the hardware layer the display bank drives: one SPI
// connection and a handful of GPIO lines.
//
// The bank only needs to drive lines, read the optional power sense line,
// move bytes over SPI and wait. Board bundles those behind small interfaces
// so the protocol code runs unchanged on periph.io pins, on the Linux GPIO
// character device, or on the recording fakes in hal/haltest.
package hal

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/conn/v3/spi/spitest"
	"periph.io/x/host/v3"
)

// ErrUnknownPin is returned when a configured pin does not exist.
var ErrUnknownPin = errors.New("hal: unknown pin")

// Line is an output line. gpio.PinOut implements it.
type Line interface {
	Out(l gpio.Level) error
}

// Sense is an input line. gpio.PinIn implements it.
type Sense interface {
	Read() gpio.Level
}

// Delayer blocks for a duration.
type Delayer interface {
	Delay(d time.Duration)
}

// SleepDelayer waits with time.Sleep.
type SleepDelayer struct{}

// Delay implements Delayer.
func (SleepDelayer) Delay(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Backend selects how GPIO lines are driven.
type Backend string

// Supported backends.
const (
	// Periph drives pins through periph.io's registry (names like "GPIO25").
	Periph Backend = "periph"
	// CDev drives pins through the GPIO character device (line offsets).
	CDev Backend = "cdev"
	// DryRun drives nothing. SPI traffic and pin writes are discarded.
	DryRun Backend = "dryrun"
)

// Config names the SPI port and pins of a Board.
type Config struct {
	Backend Backend

	// SPIPort is a spireg name; empty selects the first port.
	SPIPort  string
	SPISpeed physic.Frequency

	// Chip is the GPIO character device for the CDev backend.
	Chip string

	Reset   string
	DC      string
	CSClock string
	CSData  string

	// Power is the optional power sense input.
	Power string
}

// Board is an opened set of hardware resources.
type Board struct {
	Conn    conn.Conn
	Reset   Line
	DC      Line
	CSClock Line
	CSData  Line
	// Power is nil when no sense line is configured.
	Power   Sense
	Delay   Delayer

	closers []io.Closer
	log     zerolog.Logger
}

// Open initializes the host drivers and claims the configured SPI port and
// pins. Every resource claimed before a failure is released.
func Open(cfg Config, log zerolog.Logger) (*Board, error) {
	b := &Board{Delay: SleepDelayer{}, log: log}
	if err := b.open(cfg); err != nil {
		b.Close()
		return nil, err
	}
	log.Info().Str("backend", string(cfg.Backend)).Str("spi", b.Conn.String()).Msg("board opened")
	return b, nil
}

func (b *Board) open(cfg Config) error {
	var port spi.PortCloser
	switch cfg.Backend {
	case Periph, CDev:
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("hal: failed to initialize host: %w", err)
		}
		p, err := spireg.Open(cfg.SPIPort)
		if err != nil {
			return fmt.Errorf("hal: failed to open SPI port %q: %w", cfg.SPIPort, err)
		}
		port = p
	case DryRun:
		port = spitest.NewRecordRaw(io.Discard)
	default:
		return fmt.Errorf("hal: unknown backend %q", cfg.Backend)
	}
	b.closers = append(b.closers, port)

	speed := cfg.SPISpeed
	if speed == 0 {
		speed = 40 * physic.MegaHertz
	}
	c, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("hal: failed to connect SPI: %w", err)
	}
	b.Conn = c

	outs := []struct {
		name string
		dst  *Line
		init gpio.Level
	}{
		{cfg.Reset, &b.Reset, gpio.High},
		{cfg.DC, &b.DC, gpio.Low},
		{cfg.CSClock, &b.CSClock, gpio.Low},
		{cfg.CSData, &b.CSData, gpio.High},
	}
	for _, o := range outs {
		l, err := b.output(cfg, o.name, o.init)
		if err != nil {
			return err
		}
		*o.dst = l
	}

	if cfg.Power != "" {
		s, err := b.input(cfg, cfg.Power)
		if err != nil {
			return err
		}
		b.Power = s
	}
	return nil
}

func (b *Board) output(cfg Config, name string, init gpio.Level) (Line, error) {
	switch cfg.Backend {
	case Periph:
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
		}
		if err := p.Out(init); err != nil {
			return nil, fmt.Errorf("hal: failed to drive %s: %w", name, err)
		}
		return p, nil
	case CDev:
		off, err := strconv.Atoi(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a line offset", ErrUnknownPin, name)
		}
		value := 0
		if init == gpio.High {
			value = 1
		}
		l, err := gpiocdev.RequestLine(cfg.Chip, off, gpiocdev.AsOutput(value), gpiocdev.WithConsumer("lcdbank"))
		if err != nil {
			return nil, fmt.Errorf("hal: failed to request %s line %d: %w", cfg.Chip, off, err)
		}
		b.closers = append(b.closers, l)
		return &cdevLine{l: l, log: b.log}, nil
	default:
		return &gpiotest.Pin{N: name, L: init}, nil
	}
}

func (b *Board) input(cfg Config, name string) (Sense, error) {
	switch cfg.Backend {
	case Periph:
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
		}
		if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("hal: failed to read %s: %w", name, err)
		}
		return p, nil
	case CDev:
		off, err := strconv.Atoi(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a line offset", ErrUnknownPin, name)
		}
		l, err := gpiocdev.RequestLine(cfg.Chip, off, gpiocdev.AsInput, gpiocdev.WithConsumer("lcdbank"))
		if err != nil {
			return nil, fmt.Errorf("hal: failed to request %s line %d: %w", cfg.Chip, off, err)
		}
		b.closers = append(b.closers, l)
		return &cdevLine{l: l, log: b.log}, nil
	default:
		return &gpiotest.Pin{N: name, L: gpio.High}, nil
	}
}

// Close releases the pins and the SPI port.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// cdevLine adapts a character device line to Line and Sense.
type cdevLine struct {
	l   *gpiocdev.Line
	log zerolog.Logger
}

func (c *cdevLine) Out(l gpio.Level) error {
	v := 0
	if l == gpio.High {
		v = 1
	}
	return c.l.SetValue(v)
}

func (c *cdevLine) Read() gpio.Level {
	v, err := c.l.Value()
	if err != nil {
		c.log.Error().Err(err).Msg("failed to read line")
		return gpio.Low
	}
	return gpio.Level(v != 0)
}
