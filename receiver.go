package spicore

import (
	"iter"

	"periph.io/x/conn/v3/gpio"
)

// Event is what the receiver reports to the decoder after one processing
// clock.
type Event uint8

const (
	EventNone  Event = iota
	EventStart       // chip select asserted
	EventByte        // eighth bit of a byte captured
	EventEnd         // chip select released
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventStart:
		return "start"
	case EventByte:
		return "byte"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Sample is the serial interface as seen on one processing clock edge.
type Sample struct {
	CSN  gpio.Level
	SCK  gpio.Level
	MOSI gpio.Level
}

// Receiver recovers bytes from the serial lines [SPI-Mode0]. Every line goes
// through its own synchronizer, so relative ordering of CS_N, SCK and MOSI is
// preserved while crossing into the processing clock domain.
type Receiver struct {
	csn  *Synchronizer
	sck  *Synchronizer
	mosi *Synchronizer

	prevSCK  gpio.Level
	selected bool
	shift    byte
	nbits    int
}

func NewReceiver(stages int) *Receiver {
	r := &Receiver{
		csn:  NewSynchronizer(stages, gpio.High),
		sck:  NewSynchronizer(stages, gpio.Low),
		mosi: NewSynchronizer(stages, gpio.Low),
	}
	r.Reset()
	return r
}

// Reset puts every line back to its idle level and drops any partial byte.
func (r *Receiver) Reset() {
	r.csn.Reset(gpio.High)
	r.sck.Reset(gpio.Low)
	r.mosi.Reset(gpio.Low)
	r.prevSCK = gpio.Low
	r.selected = false
	r.shift, r.nbits = 0, 0
}

// Selected reports whether the synchronized chip select is asserted.
func (r *Receiver) Selected() bool { return r.selected }

// Clock advances the receiver by one processing clock. The returned byte is
// only meaningful with EventByte.
func (r *Receiver) Clock(csn, sck, mosi gpio.Level) (Event, byte) {
	csn = r.csn.Sample(csn)
	sck = r.sck.Sample(sck)
	mosi = r.mosi.Sample(mosi)

	rising := sck == gpio.High && r.prevSCK == gpio.Low
	r.prevSCK = sck

	if csn == gpio.High {
		if !r.selected {
			return EventNone, 0
		}
		// partial byte is dropped
		r.selected = false
		r.shift, r.nbits = 0, 0
		return EventEnd, 0
	}

	if !r.selected {
		// mode 0 keeps SCK low while CS_N falls, so no edge is lost here
		r.selected = true
		r.shift, r.nbits = 0, 0
		return EventStart, 0
	}

	if !rising {
		return EventNone, 0
	}
	r.shift <<= 1
	if mosi == gpio.High {
		r.shift |= 1
	}
	r.nbits++
	if r.nbits < 8 {
		return EventNone, 0
	}
	b := r.shift
	r.shift, r.nbits = 0, 0
	return EventByte, b
}

// Bytes returns the bytes recovered from a sampled trace of the serial lines.
// The sequence is lazy: samples are pulled only as far as the consumer reads.
func (r *Receiver) Bytes(samples iter.Seq[Sample]) iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for s := range samples {
			ev, b := r.Clock(s.CSN, s.SCK, s.MOSI)
			if ev != EventByte {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}
