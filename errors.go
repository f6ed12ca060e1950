package spicore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand is reported when the chip raised ERROR for an opcode
	// outside its command set.
	ErrInvalidCommand = errors.New("spicore: invalid command")
	// ErrProgramDenied is reported when PROG_WEIGHT executed without the
	// programming-enable gate.
	ErrProgramDenied = errors.New("spicore: weight programming not enabled")
	// ErrRejected is reported when ERROR is set after any other command.
	ErrRejected = errors.New("spicore: command rejected")
)

// CommandError is returned by Controller when the chip flagged a
// transaction.
type CommandError struct {
	Op     Opcode
	Data   byte
	Status Status
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s 0x%02X: %v (status %s)", e.Op, e.Data, e.Err, e.Status)
}

func (e *CommandError) Unwrap() error { return e.Err }
