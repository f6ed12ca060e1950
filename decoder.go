package spicore

import (
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
)

// Opcode is the first byte of a transaction.
type Opcode byte

// Command set. Any other value sets ERROR.
const (
	OpNOP        Opcode = 0x00
	OpSetDAC     Opcode = 0x01
	OpReadADC    Opcode = 0x02 // only bit 0 of the sample reaches MISO
	OpProgWeight Opcode = 0x03
	OpReadStatus Opcode = 0x04
)

var opcodeNames = map[Opcode]string{
	OpNOP:        "NOP",
	OpSetDAC:     "SET_DAC",
	OpReadADC:    "READ_ADC",
	OpProgWeight: "PROG_WEIGHT",
	OpReadStatus: "READ_STATUS",
}

func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(op))
}

// ParseOpcode accepts a command name (case-insensitive) or a numeric byte
// value such as "0xff". Unknown numeric values are returned as is.
func ParseOpcode(s string) (Opcode, error) {
	for op, name := range opcodeNames {
		if strings.EqualFold(s, name) {
			return op, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid opcode %q", s)
	}
	return Opcode(v), nil
}

// Phase of the decoder state machine.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAwaitCommand
	PhaseAwaitData
	PhaseExecute // only held inside Decoder.Step
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAwaitCommand:
		return "AWAIT_COMMAND_BYTE"
	case PhaseAwaitData:
		return "AWAIT_DATA_BYTE"
	case PhaseExecute:
		return "EXECUTE"
	}
	return "unknown"
}

// Outcome of one transaction. Every flag change made by the decoder goes
// through Outcome.apply.
type Outcome uint8

const (
	OutcomeNone       Outcome = iota // nothing finished this step
	OutcomeDone                      // recognised command executed
	OutcomeProgrammed                // PROG_WEIGHT committed
	OutcomeDenied                    // PROG_WEIGHT without the programming-enable gate
	OutcomeInvalid                   // unrecognised opcode
	OutcomeAborted                   // chip select released before the data byte
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeDone:
		return "done"
	case OutcomeProgrammed:
		return "programmed"
	case OutcomeDenied:
		return "denied"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeAborted:
		return "aborted"
	}
	return "unknown"
}

func (o Outcome) apply(s *Status) {
	switch o {
	case OutcomeDone:
		s.set(StatusReady, true)
		s.set(StatusError, false)
	case OutcomeProgrammed:
		s.set(StatusReady, true)
		s.set(StatusError, false)
		s.set(StatusProgDone, true)
	case OutcomeDenied:
		s.set(StatusError, true)
		s.set(StatusProgDone, false)
	case OutcomeInvalid:
		s.set(StatusError, true)
	}
}

// Transaction is the command/data pair collected between chip select
// assertion and release.
type Transaction struct {
	Command Opcode
	Data    byte
	Active  bool
}

// State is everything the chip keeps between transactions. It is owned by
// the decoder; other components only read copies of it.
type State struct {
	DAC    uint8 // 4 bits
	Weight byte
	Status Status
}

// Reset restores the power-on values. The weight store is programmable
// memory and keeps its content.
func (s *State) Reset() {
	s.DAC = 0
	s.Status = StatusReady
}

// Decoder runs IDLE → AWAIT_COMMAND_BYTE → AWAIT_DATA_BYTE → EXECUTE → IDLE.
type Decoder struct {
	phase Phase
	tx    Transaction
}

func (d *Decoder) Reset() {
	d.phase = PhaseIdle
	d.tx = Transaction{}
}

func (d *Decoder) Phase() Phase { return d.phase }

// Transaction returns the transaction in flight, or the last one if the chip
// select is still asserted after it executed.
func (d *Decoder) Transaction() Transaction { return d.tx }

// Step consumes one receiver event. in carries the programming-enable gate
// and the ADC sample as they are at this clock edge; both are only looked at
// when a command executes.
func (d *Decoder) Step(st *State, ev Event, b byte, in Inputs) Outcome {
	switch ev {
	case EventStart:
		d.phase = PhaseAwaitCommand
		d.tx = Transaction{Active: true}

	case EventEnd:
		aborted := d.phase == PhaseAwaitCommand || d.phase == PhaseAwaitData
		d.phase = PhaseIdle
		d.tx.Active = false
		if aborted {
			return OutcomeAborted
		}

	case EventByte:
		switch d.phase {
		case PhaseAwaitCommand:
			d.tx.Command = Opcode(b)
			d.phase = PhaseAwaitData
		case PhaseAwaitData:
			d.tx.Data = b
			d.phase = PhaseExecute
			o := execute(st, d.tx.Command, d.tx.Data, in)
			o.apply(&st.Status)
			d.phase = PhaseIdle
			return o
		}
		// bytes after EXECUTE are ignored until the next assertion
	}
	return OutcomeNone
}

func execute(st *State, op Opcode, data byte, in Inputs) Outcome {
	switch op {
	case OpNOP:
		return OutcomeDone
	case OpSetDAC:
		st.DAC = data & 0x0F
		return OutcomeDone
	case OpReadADC:
		st.Status.set(StatusMISO, in.ADC&1 != 0)
		return OutcomeDone
	case OpProgWeight:
		if in.ProgEn != gpio.High {
			return OutcomeDenied
		}
		st.Weight = data
		return OutcomeProgrammed
	case OpReadStatus:
		st.Status.set(StatusMISO, st.Status.Ready())
		return OutcomeDone
	}
	return OutcomeInvalid
}
