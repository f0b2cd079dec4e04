// Package haltest provides a recording hal.Board and a simulated
// chip-select shift register chain for tests.
package haltest

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/zpin/lcdbank/hal"
)

// Pin names used in recorded events.
const (
	Reset   = "RST"
	DC      = "DC"
	CSClock = "CS_CLK"
	CSData  = "CS_DAT"
)

// Kind is the type of a recorded event.
type Kind uint8

// Event kinds.
const (
	Write Kind = iota
	Tx
	Delay
)

func (k Kind) String() string {
	switch k {
	case Write:
		return "write"
	case Tx:
		return "tx"
	case Delay:
		return "delay"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one recorded HAL call.
type Event struct {
	Kind Kind

	// Write
	Pin   string
	Level gpio.Level

	// Tx. DCLevel is the DC line level and Selected the chain's selected
	// displays at the time of the transfer.
	Data     []byte
	DCLevel  gpio.Level
	Selected []int

	// Delay
	Duration time.Duration
}

// Recorder records every pin write, SPI transfer and delay made through
// its Board. It does not sleep.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	levels map[string]gpio.Level

	// Chain follows the CS_CLK and CS_DAT writes.
	Chain *Chain
	// Power is the sense line. It reads High until changed.
	Power *gpiotest.Pin
}

// New returns a Recorder whose chain serves displays positions.
func New(displays int) *Recorder {
	return &Recorder{
		levels: map[string]gpio.Level{},
		Chain:  NewChain(displays),
		Power:  &gpiotest.Pin{N: "POWER", L: gpio.High},
	}
}

// Board returns a hal.Board wired to the recorder.
func (r *Recorder) Board() *hal.Board {
	return &hal.Board{
		Conn:    &recConn{r: r},
		Reset:   r.Pin(Reset),
		DC:      r.Pin(DC),
		CSClock: r.Pin(CSClock),
		CSData:  r.Pin(CSData),
		Power:   r.Power,
		Delay:   r,
	}
}

// Pin returns an output line recorded under name.
func (r *Recorder) Pin(name string) hal.Line {
	return &pin{r: r, name: name}
}

// Delay implements hal.Delayer.
func (r *Recorder) Delay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: Delay, Duration: d})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Clear drops the recorded events. Pin levels and the chain are kept.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Txs returns the recorded SPI transfers.
func (r *Recorder) Txs() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == Tx {
			out = append(out, e)
		}
	}
	return out
}

// Writes returns the levels written to name, in order.
func (r *Recorder) Writes(name string) []gpio.Level {
	var out []gpio.Level
	for _, e := range r.Events() {
		if e.Kind == Write && e.Pin == name {
			out = append(out, e.Level)
		}
	}
	return out
}

// Level returns the last level written to name, Low if never written.
func (r *Recorder) Level(name string) gpio.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[name]
}

// Slept returns the sum of all recorded delays.
func (r *Recorder) Slept() time.Duration {
	var d time.Duration
	for _, e := range r.Events() {
		if e.Kind == Delay {
			d += e.Duration
		}
	}
	return d
}

func (r *Recorder) write(name string, l gpio.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[name] = l
	r.events = append(r.events, Event{Kind: Write, Pin: name, Level: l})
	switch name {
	case CSClock:
		r.Chain.SetClock(l)
	case CSData:
		r.Chain.SetData(l)
	}
}

func (r *Recorder) tx(w []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		Kind:     Tx,
		Data:     append([]byte(nil), w...),
		DCLevel:  r.levels[DC],
		Selected: r.Chain.Selected(),
	})
}

type pin struct {
	r    *Recorder
	name string
}

func (p *pin) Out(l gpio.Level) error {
	p.r.write(p.name, l)
	return nil
}

type recConn struct {
	r *Recorder
}

func (c *recConn) String() string { return "haltest" }

func (c *recConn) Tx(w, r []byte) error {
	c.r.tx(w)
	for i := range r {
		r[i] = 0
	}
	return nil
}

func (c *recConn) Duplex() conn.Duplex { return conn.Half }
