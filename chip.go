package spicore

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Inputs is the level of every input pin at one processing clock edge.
type Inputs struct {
	CSN    gpio.Level // chip select, active low
	SCK    gpio.Level
	MOSI   gpio.Level
	ProgEn gpio.Level // programming-enable gate
	RstN   gpio.Level // reset, active low
	ADC    byte       // ADC sample on uio_in
}

// IdleInputs returns the inputs of a deselected chip out of reset.
func IdleInputs() Inputs {
	return Inputs{CSN: gpio.High, RstN: gpio.High}
}

// ui_in bit positions [TT-Pinout].
const (
	uiCSN    = 0
	uiSCK    = 1
	uiMOSI   = 2
	uiProgEn = 7
)

// InputsFromPorts decodes the ui_in and uio_in ports.
func InputsFromPorts(ui, uio byte, rstN gpio.Level) Inputs {
	bit := func(n int) gpio.Level { return ui&(1<<n) != 0 }
	return Inputs{
		CSN:    bit(uiCSN),
		SCK:    bit(uiSCK),
		MOSI:   bit(uiMOSI),
		ProgEn: bit(uiProgEn),
		RstN:   rstN,
		ADC:    uio,
	}
}

// UI encodes the serial lines and the gate as the ui_in port.
func (in Inputs) UI() byte {
	var ui byte
	set := func(n int, l gpio.Level) {
		if l {
			ui |= 1 << n
		}
	}
	set(uiCSN, in.CSN)
	set(uiSCK, in.SCK)
	set(uiMOSI, in.MOSI)
	set(uiProgEn, in.ProgEn)
	return ui
}

// Stats counts transactions since the chip was created. Reset does not
// clear it.
type Stats struct {
	Transactions int // transactions that reached EXECUTE
	Aborted      int // chip select released before the data byte
	Errors       int // transactions that left ERROR set
	Programmed   int // committed weight writes
}

// Chip is the command core: receiver, decoder and output register clocked
// together. It is not safe for concurrent use.
type Chip struct {
	log   logrus.FieldLogger
	clock physic.Frequency

	rx   *Receiver
	gate *Synchronizer
	dec  Decoder
	st   State
	out  Outputs

	cycles uint64
	stats  Stats
}

// New returns a chip that has just come out of reset.
func New(opts ...Option) (*Chip, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.stages < 2 || cfg.stages > 3 {
		return nil, fmt.Errorf("synchronizer depth %d out of range [2, 3]", cfg.stages)
	}
	if cfg.clock <= 0 {
		return nil, fmt.Errorf("invalid processing clock %s", cfg.clock)
	}

	c := &Chip{
		log:   cfg.logger,
		clock: cfg.clock,
		rx:    NewReceiver(cfg.stages),
		gate:  NewSynchronizer(cfg.stages, gpio.Low),
	}
	c.Reset()
	return c, nil
}

// Reset forces IDLE, DAC=0, READY=1, ERROR=0, PROG_DONE=0 and a low response
// bit, exactly like holding rst_n low for a clock.
func (c *Chip) Reset() {
	c.rx.Reset()
	c.gate.Reset(gpio.Low)
	c.dec.Reset()
	c.st.Reset()
	c.out = Outputs{Status: c.st.Status, DAC: c.st.DAC}
}

// Clock advances the chip by one processing clock edge.
func (c *Chip) Clock(in Inputs) {
	c.cycles++
	if in.RstN == gpio.Low {
		c.Reset()
		return
	}

	in.ProgEn = c.gate.Sample(in.ProgEn)
	ev, b := c.rx.Clock(in.CSN, in.SCK, in.MOSI)
	if ev == EventByte {
		c.log.WithFields(logrus.Fields{
			"cycle": c.cycles,
			"phase": c.dec.Phase(),
			"byte":  fmt.Sprintf("0x%02X", b),
		}).Trace("byte received")
	}
	if ev != EventNone {
		if o := c.dec.Step(&c.st, ev, b, in); o != OutcomeNone {
			c.account(o)
		}
	}

	c.out = Outputs{Status: c.st.Status, DAC: c.st.DAC}
}

func (c *Chip) account(o Outcome) {
	tx := c.dec.Transaction()
	entry := c.log.WithFields(logrus.Fields{
		"cycle":   c.cycles,
		"outcome": o,
	})

	if o == OutcomeAborted {
		c.stats.Aborted++
		entry.Debug("transaction aborted")
		return
	}

	c.stats.Transactions++
	if o == OutcomeProgrammed {
		c.stats.Programmed++
	}
	if c.st.Status.Error() {
		c.stats.Errors++
	}
	entry.WithFields(logrus.Fields{
		"cmd":    tx.Command,
		"data":   fmt.Sprintf("0x%02X", tx.Data),
		"status": c.st.Status,
		"dac":    c.st.DAC,
	}).Debug("transaction")
}

// Outputs returns the output register as latched at the last clock edge.
func (c *Chip) Outputs() Outputs { return c.out }

// State returns a copy of the chip state, including the weight store which
// has no output pin.
func (c *Chip) State() State { return c.st }

func (c *Chip) Phase() Phase { return c.dec.Phase() }

// Cycles returns the number of processing clock edges seen so far.
func (c *Chip) Cycles() uint64 { return c.cycles }

func (c *Chip) Stats() Stats { return c.stats }

// ClockFrequency returns the processing clock frequency.
func (c *Chip) ClockFrequency() physic.Frequency { return c.clock }
