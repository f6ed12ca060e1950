package spicore

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Pins is the board wiring the controller needs besides the SPI lines.
// A nil flag pin reads as low.
type Pins struct {
	CS     gpio.PinOut // ui_in[0], active low
	ProgEn gpio.PinOut // ui_in[7]

	MISO     gpio.PinIn // uo_out[0]
	Ready    gpio.PinIn // uo_out[1]
	Err      gpio.PinIn // uo_out[2]
	ProgDone gpio.PinIn // uo_out[3]
}

// Controller drives the chip from the host side, over the emulated Bus or a
// real SPI port.
type Controller struct {
	conn spi.Conn
	pins Pins
}

func NewController(conn spi.Conn, pins Pins) *Controller {
	return &Controller{
		conn: conn,
		pins: pins,
	}
}

// tx wraps SPI transaction with CS assertion.
func (c *Controller) tx(buf []byte) (err error) {
	if err = c.pins.CS.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := c.pins.CS.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = c.conn.Tx(buf, buf)
	return
}

// Exec runs one transaction and returns the flags after chip select was
// released. A set ERROR flag is reported as *CommandError.
func (c *Controller) Exec(op Opcode, data byte) (Status, error) {
	buf := []byte{byte(op), data}
	if err := c.tx(buf); err != nil {
		return 0, fmt.Errorf("%s transaction failed: %w", op, err)
	}

	sr := c.Status()
	if !sr.Error() {
		return sr, nil
	}
	e := &CommandError{Op: op, Data: data, Status: sr, Err: ErrRejected}
	switch {
	case !op.Valid():
		e.Err = ErrInvalidCommand
	case op == OpProgWeight:
		e.Err = ErrProgramDenied
	}
	return sr, e
}

// Status reads the flag pins. It does not start a transaction.
func (c *Controller) Status() Status {
	var sr Status
	read := func(p gpio.PinIn, f Status) {
		if p != nil && p.Read() == gpio.High {
			sr |= f
		}
	}
	read(c.pins.MISO, StatusMISO)
	read(c.pins.Ready, StatusReady)
	read(c.pins.Err, StatusError)
	read(c.pins.ProgDone, StatusProgDone)
	return sr
}

// Nop clears a pending ERROR.
func (c *Controller) Nop() error {
	_, err := c.Exec(OpNOP, 0)
	return err
}

// SetDAC sets the 4-bit DAC output.
func (c *Controller) SetDAC(v uint8) error {
	if v > 0x0F {
		return fmt.Errorf("DAC value %d out of 4-bit range", v)
	}
	_, err := c.Exec(OpSetDAC, v)
	return err
}

// ReadADC returns bit 0 of the ADC sample. The response line is one bit
// wide, so the rest of the sample is not observable.
func (c *Controller) ReadADC() (gpio.Level, error) {
	sr, err := c.Exec(OpReadADC, 0)
	if err != nil {
		return gpio.Low, err
	}
	return gpio.Level(sr.MISO()), nil
}

// ReadStatus asks the chip to put READY on MISO and returns the flags.
func (c *Controller) ReadStatus() (Status, error) {
	return c.Exec(OpReadStatus, 0)
}

// SetProgramEnable drives the programming-enable gate.
func (c *Controller) SetProgramEnable(l gpio.Level) error {
	if c.pins.ProgEn == nil {
		return errors.New("programming-enable pin not wired")
	}
	return c.pins.ProgEn.Out(l)
}

// ProgramWeight raises the programming-enable gate for the duration of a
// PROG_WEIGHT transaction.
func (c *Controller) ProgramWeight(w byte) (err error) {
	if err = c.SetProgramEnable(gpio.High); err != nil {
		return err
	}
	defer func() {
		if genErr := c.SetProgramEnable(gpio.Low); genErr != nil && err == nil {
			err = genErr
		}
	}()
	_, err = c.Exec(OpProgWeight, w)
	return
}
