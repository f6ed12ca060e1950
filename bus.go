package spicore

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var errBusClosed = errors.New("spicore: bus closed")

// Bus is an emulated SPI host port wired to a Chip. Conns obtained from it
// bit-bang SCK and MOSI [SPI-Mode0]; chip select and the programming-enable
// gate are pins the caller drives, the same way the board exposes them.
//
// Driving the CS pin advances the processing clock by the setup or release
// time so the chip observes the edge before the next call returns.
type Bus struct {
	mu     sync.Mutex
	chip   *Chip
	in     Inputs
	timing busTiming
	limit  physic.Frequency
	closed bool

	cs       *drivenPin
	progEn   *gpiotest.Pin
	miso     *gpiotest.Pin
	ready    *gpiotest.Pin
	errFlag  *gpiotest.Pin
	progDone *gpiotest.Pin
}

// drivenPin notifies the bus after every Out.
type drivenPin struct {
	*gpiotest.Pin
	onOut func(gpio.Level)
}

func (p *drivenPin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.onOut(l)
	return nil
}

func NewBus(chip *Chip) *Bus {
	b := &Bus{
		chip:     chip,
		in:       IdleInputs(),
		timing:   harnessTiming,
		progEn:   &gpiotest.Pin{N: "PROG_EN", Num: uiProgEn},
		miso:     &gpiotest.Pin{N: "MISO", Num: 0},
		ready:    &gpiotest.Pin{N: "READY", Num: 1},
		errFlag:  &gpiotest.Pin{N: "ERROR", Num: 2},
		progDone: &gpiotest.Pin{N: "PROG_DONE", Num: 3},
	}
	b.cs = &drivenPin{
		Pin:   &gpiotest.Pin{N: "CS_N", Num: uiCSN, L: gpio.High},
		onOut: b.selectChanged,
	}
	b.mirror()
	return b
}

// Pins returns the host side of the board wiring.
func (b *Bus) Pins() Pins {
	return Pins{
		CS:       b.cs,
		ProgEn:   b.progEn,
		MISO:     b.miso,
		Ready:    b.ready,
		Err:      b.errFlag,
		ProgDone: b.progDone,
	}
}

// Controller connects to the bus with the harness timing.
func (b *Bus) Controller() (*Controller, error) {
	c, err := b.Connect(0, spi.Mode0, 8)
	if err != nil {
		return nil, err
	}
	return NewController(c, b.Pins()), nil
}

func (b *Bus) String() string { return "spicore-bus" }

// Connect returns a conn clocking SCK at f, or with the harness timing if f
// is 0. The chip only supports mode 0 with 8-bit words.
func (b *Bus) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if mode != spi.Mode0 {
		return nil, fmt.Errorf("spicore: %s not supported, chip samples on rising SCK idling low", mode)
	}
	if bits != 8 {
		return nil, fmt.Errorf("spicore: %d bits per word not supported", bits)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed
	}
	if b.limit != 0 && (f == 0 || f > b.limit) {
		f = b.limit
	}
	t, err := timingFor(b.chip.ClockFrequency(), f)
	if err != nil {
		return nil, err
	}
	b.timing = t
	return &busConn{b: b, t: t}, nil
}

func (b *Bus) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("spicore: invalid speed %s", f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = f
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// SetADC sets the sample presented on uio_in.
func (b *Bus) SetADC(v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.in.ADC = v
}

// Reset holds rst_n low for the release time, then lets the chip run idle
// for the same time.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.in.RstN = gpio.Low
	b.run(b.timing.release)
	b.in.RstN = gpio.High
	b.run(b.timing.release)
}

// Idle runs n processing clocks without touching any input.
func (b *Bus) Idle(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run(n)
}

// Partial shifts only the nbits most significant bits of v, leaving a
// truncated byte in the receiver. Use it to exercise framing anomalies.
func (b *Bus) Partial(v byte, nbits int) error {
	if nbits < 0 || nbits > 7 {
		return fmt.Errorf("spicore: partial byte of %d bits", nbits)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBusClosed
	}
	b.shift(b.timing, v, nbits)
	return nil
}

func (b *Bus) Outputs() Outputs {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chip.Outputs()
}

// State returns a copy of the chip state, the only way to see the weight
// store.
func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chip.State()
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chip.Stats()
}

func (b *Bus) Cycles() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chip.Cycles()
}

func (b *Bus) selectChanged(l gpio.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l == gpio.Low {
		b.run(b.timing.setup)
	} else {
		b.run(b.timing.release)
	}
}

// run clocks the chip n times. b.mu must be held.
func (b *Bus) run(n int) {
	for range n {
		b.in.CSN = b.cs.Read()
		b.in.ProgEn = b.progEn.Read()
		b.chip.Clock(b.in)
		b.mirror()
	}
}

func (b *Bus) mirror() {
	s := b.chip.Outputs().Status
	// gpiotest pins never fail Out
	_ = b.miso.Out(gpio.Level(s.MISO()))
	_ = b.ready.Out(gpio.Level(s.Ready()))
	_ = b.errFlag.Out(gpio.Level(s.Error()))
	_ = b.progDone.Out(gpio.Level(s.ProgDone()))
}

// shift clocks out the top nbits of v MSB first and returns what was sampled
// on MISO just before each rising edge. b.mu must be held.
func (b *Bus) shift(t busTiming, v byte, nbits int) byte {
	var got byte
	for i := 7; i > 7-nbits; i-- {
		b.in.MOSI = v&(1<<i) != 0
		b.run(t.half)
		got <<= 1
		if b.chip.Outputs().Status.MISO() {
			got |= 1
		}
		b.in.SCK = gpio.High
		b.run(t.half)
		b.in.SCK = gpio.Low
		b.run(t.half)
	}
	b.in.MOSI = gpio.Low
	return got
}

func (b *Bus) tx(t busTiming, w, r []byte) error {
	if len(w) != 0 && len(r) != 0 && len(w) != len(r) {
		return fmt.Errorf("spicore: w and r lengths differ (%d != %d)", len(w), len(r))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBusClosed
	}
	for i := range max(len(w), len(r)) {
		var v byte
		if len(w) != 0 {
			v = w[i]
		}
		got := b.shift(t, v, 8)
		if len(r) != 0 {
			r[i] = got
		}
		b.run(t.gap)
	}
	return nil
}

// busConn implements spi.Conn on top of a Bus.
type busConn struct {
	b *Bus
	t busTiming
}

func (c *busConn) String() string {
	return fmt.Sprintf("%s@%s", c.b, c.t.frequency(c.b.chip.ClockFrequency()))
}

func (c *busConn) Duplex() conn.Duplex { return conn.Full }

func (c *busConn) Tx(w, r []byte) error {
	return c.b.tx(c.t, w, r)
}

// TxPackets runs each packet back to back. Chip select is a separate pin, so
// KeepCS has no effect.
func (c *busConn) TxPackets(pkts []spi.Packet) error {
	for _, p := range pkts {
		if p.BitsPerWord != 0 && p.BitsPerWord != 8 {
			return fmt.Errorf("spicore: %d bits per word not supported", p.BitsPerWord)
		}
		if err := c.Tx(p.W, p.R); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ spi.PortCloser = (*Bus)(nil)
	_ spi.Conn       = (*busConn)(nil)
	_ gpio.PinIO     = (*drivenPin)(nil)
)
