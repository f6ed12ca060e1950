package spicore

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// busTiming is how long the emulated host holds each bus state, in
// processing clock cycles. Every value must exceed the synchronizer depth for
// the chip to see the state.
type busTiming struct {
	name string

	half    int // one SCK phase; a bit is MOSI setup, SCK high, SCK low
	setup   int // CS_N low to first bit
	gap     int // after each byte
	release int // CS_N high to next transaction
}

// harnessTiming reproduces the bench the chip was characterized on: 2 clocks
// per SCK phase, 5 clocks around each byte, 10 clocks after release.
var harnessTiming = busTiming{
	name:    "harness",
	half:    2,
	setup:   5,
	gap:     5,
	release: 10,
}

// timingFor derives the profile for an SCK frequency f against the processing
// clock. Zero selects harnessTiming.
func timingFor(clock, f physic.Frequency) (busTiming, error) {
	if f == 0 {
		return harnessTiming, nil
	}
	if 3*f > clock {
		return busTiming{}, fmt.Errorf("SCK %s too fast for a %s processing clock", f, clock)
	}
	// round up so the bus never runs faster than asked
	half := int((clock + 3*f - 1) / (3 * f))
	t := harnessTiming
	t.name = f.String()
	t.half = half
	return t, nil
}

// frequency returns the SCK frequency t produces.
func (t busTiming) frequency(clock physic.Frequency) physic.Frequency {
	return clock / physic.Frequency(3*t.half)
}
