package spicore

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Device is the chip on a board wired to an FT2232H.
type Device struct {
	FTDI *ftdi.FT232H

	cs     gpio.PinIO // ADBUS4 -> ui_in[0] CS_N
	progEn gpio.PinIO // ADBUS5 -> ui_in[7] PROG_EN
	rstN   gpio.PinIO // ADBUS7 -> rst_n
	flags  [4]gpio.PinIO

	clock physic.Frequency
	conn  spi.Conn
}

var hostInitialized atomic.Bool

// NewDevice finds FT2232H device and opens MPSSE/SPI connection.
func NewDevice() (*Device, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	d := &Device{
		// the chip needs at least 6 processing clocks per SCK period, well
		// below this at 10 MHz
		clock: 1 * physic.MegaHertz,
	}
	if err := d.findFT2232H(); err != nil {
		return nil, err
	}

	// ADBUS0 | SCK      -> ui_in[1]
	// ADBUS1 | MOSI     -> ui_in[2]
	// ADBUS2 | MISO     <- uo_out[0]
	// ADBUS4 | CS_N     -> ui_in[0]
	// ADBUS5 | PROG_EN  -> ui_in[7]
	// ADBUS7 | RST_N    -> rst_n
	// ACBUS0 | MISO     <- uo_out[0]
	// ACBUS1 | READY    <- uo_out[1]
	// ACBUS2 | ERROR    <- uo_out[2]
	// ACBUS3 | PROG_DONE <- uo_out[3]
	d.cs = d.FTDI.D4
	d.progEn = d.FTDI.D5
	d.rstN = d.FTDI.D7
	d.flags = [4]gpio.PinIO{d.FTDI.C0, d.FTDI.C1, d.FTDI.C2, d.FTDI.C3}

	if err := d.cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to release CS_N: %w", err)
	}
	if err := d.progEn.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to clear PROG_EN: %w", err)
	}
	for _, p := range d.flags {
		if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", p, err)
		}
	}

	if err := d.connectSPI(); err != nil {
		return nil, err
	}
	return d, nil
}

// ResetChip asserts (low) or deasserts (high) the chip reset line.
func (d *Device) ResetChip(l gpio.Level) error {
	return d.rstN.Out(l)
}

// Controller returns a controller for the chip on the board.
func (d *Device) Controller() *Controller {
	return NewController(d.conn, Pins{
		CS:       d.cs,
		ProgEn:   d.progEn,
		MISO:     d.flags[0],
		Ready:    d.flags[1],
		Err:      d.flags[2],
		ProgDone: d.flags[3],
	})
}

func (d *Device) findFT2232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}

	return errors.New("FT2232H not found")
}

func (d *Device) connectSPI() (err error) {
	if d.FTDI == nil {
		return errors.New("FT2232H device not found")
	}

	port, err := d.FTDI.SPI()
	if err != nil {
		return fmt.Errorf("failed to get SPI port: %w", err)
	}

	// [FTDI AN_114|1.2] > FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	// the chip samples MOSI on the rising edge with SCK idling low, so mode 0
	d.conn, err = port.Connect(d.clock, spi.Mode0, 8)
	return err
}
