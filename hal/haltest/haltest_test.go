package haltest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
)

func TestChainShift(t *testing.T) {
	c := NewChain(3)
	assert.Empty(t, c.Selected())

	pulse := func(data gpio.Level) {
		c.SetData(data)
		c.SetClock(gpio.High)
		c.SetClock(gpio.Low)
	}

	// Positions 3 (spare) down to 0, selecting 1, then the latch.
	for _, l := range []gpio.Level{gpio.High, gpio.High, gpio.Low, gpio.High} {
		pulse(l)
	}
	pulse(gpio.High)

	assert.Equal(t, []int{1}, c.Selected())
	assert.Equal(t, 5, c.Pulses())
	assert.Equal(t, gpio.Low, c.Clock())
	assert.Equal(t, gpio.High, c.Stage(0))
}

func TestChainIgnoresHeldClock(t *testing.T) {
	c := NewChain(2)
	c.SetData(gpio.Low)
	c.SetClock(gpio.High)
	c.SetClock(gpio.High)
	assert.Equal(t, 1, c.Pulses())
}

func TestRecorder(t *testing.T) {
	r := New(2)
	b := r.Board()

	assert.NoError(t, b.DC.Out(gpio.High))
	assert.NoError(t, b.Conn.Tx([]byte{1, 2}, nil))
	b.Delay.Delay(5 * time.Millisecond)
	assert.NoError(t, b.CSData.Out(gpio.Low))
	assert.NoError(t, b.CSClock.Out(gpio.High))

	events := r.Events()
	assert.Len(t, events, 5)
	assert.Equal(t, Tx, events[1].Kind)
	assert.Equal(t, []byte{1, 2}, events[1].Data)
	assert.Equal(t, gpio.High, events[1].DCLevel)
	assert.Equal(t, 5*time.Millisecond, r.Slept())
	assert.Equal(t, []gpio.Level{gpio.High}, r.Writes(DC))
	assert.Equal(t, gpio.High, r.Level(CSClock))
	assert.Equal(t, 1, r.Chain.Pulses())
	assert.Equal(t, gpio.High, b.Power.Read())

	r.Clear()
	assert.Empty(t, r.Events())
	assert.Equal(t, gpio.High, r.Level(DC))
}
