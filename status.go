package spicore

import (
	"fmt"
	"strings"
)

// Status is the flag register as it appears on uo_out [TT-Pinout].
//
//	Bits| uo_out
//	----+---------------------------------------------------
//	7:4 | unused, driven low
//	3   | PROG_DONE: last PROG_WEIGHT committed
//	2   | ERROR: last transaction was rejected
//	1   | READY
//	0   | MISO: response of the last READ_ADC / READ_STATUS
type Status byte

const (
	StatusMISO     Status = 1 << 0
	StatusReady    Status = 1 << 1
	StatusError    Status = 1 << 2
	StatusProgDone Status = 1 << 3
)

func (s Status) MISO() bool     { return s&StatusMISO != 0 }
func (s Status) Ready() bool    { return s&StatusReady != 0 }
func (s Status) Error() bool    { return s&StatusError != 0 }
func (s Status) ProgDone() bool { return s&StatusProgDone != 0 }

func (s *Status) set(f Status, on bool) {
	if on {
		*s |= f
	} else {
		*s &^= f
	}
}

func (s Status) String() string {
	b := fmt.Sprintf("%04b", byte(s)&0x0F)
	f := []string{}
	if s.ProgDone() {
		f = append(f, "PROG_DONE")
	}
	if s.Error() {
		f = append(f, "ERROR")
	}
	if s.Ready() {
		f = append(f, "READY")
	}
	if s.MISO() {
		f = append(f, "MISO")
	}
	if len(f) == 0 {
		return b
	}
	return b + " " + strings.Join(f, ",")
}

// UIOOutputEnable is the uio_oe value: the low nibble of the bidirectional
// port drives the DAC, the high nibble stays an input.
const UIOOutputEnable = 0x0F

// Outputs is the registered output side of the chip.
type Outputs struct {
	Status Status
	DAC    uint8
}

// UO returns the dedicated output port.
func (o Outputs) UO() byte { return byte(o.Status) & 0x0F }

// UIO returns the bidirectional output port.
func (o Outputs) UIO() byte { return o.DAC & UIOOutputEnable }
