package haltest

import "periph.io/x/conn/v3/gpio"

// Chain simulates the cascaded chip-select shift register. Stage 0 is the
// latch stage nearest the input, display i sits at stage i+1 and the last
// stage is spare. A rising clock edge shifts every stage up by one and
// loads the data line into stage 0. Selection is active low.
type Chain struct {
	stages []gpio.Level
	clock  gpio.Level
	data   gpio.Level
	pulses int
}

// NewChain returns a chain for displays positions, every stage deselected.
func NewChain(displays int) *Chain {
	c := &Chain{stages: make([]gpio.Level, displays+2)}
	for i := range c.stages {
		c.stages[i] = gpio.High
	}
	return c
}

// SetClock drives the clock line.
func (c *Chain) SetClock(l gpio.Level) {
	if l == gpio.High && c.clock == gpio.Low {
		copy(c.stages[1:], c.stages[:len(c.stages)-1])
		c.stages[0] = c.data
		c.pulses++
	}
	c.clock = l
}

// SetData drives the data line.
func (c *Chain) SetData(l gpio.Level) { c.data = l }

// Clock returns the clock line level.
func (c *Chain) Clock() gpio.Level { return c.clock }

// Pulses returns the number of rising clock edges seen.
func (c *Chain) Pulses() int { return c.pulses }

// Displays returns the number of display positions.
func (c *Chain) Displays() int { return len(c.stages) - 2 }

// Selected returns the selected display positions in ascending order.
func (c *Chain) Selected() []int {
	var out []int
	for i := 0; i < c.Displays(); i++ {
		if c.stages[i+1] == gpio.Low {
			out = append(out, i)
		}
	}
	return out
}

// Stage returns the level held by stage s.
func (c *Chain) Stage(s int) gpio.Level { return c.stages[s] }
