package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gentam/spicore"
	"periph.io/x/conn/v3/gpio"
)

const interpHelp = `Commands:
	nop                 clear ERROR
	dac <v>             SET_DAC, v in [0, 15]
	adc                 READ_ADC, prints bit 0 of the sample
	prog <v>            PROG_WEIGHT with the gate raised
	status              READ_STATUS
	cmd <op> <data>     raw transaction, op by name or value
	gate on|off         drive the programming-enable gate
	reset               pulse rst_n
	flags               read the flag pins
emulator only:
	sample <v>          set the ADC sample on uio_in
	abort <v> <bits>    select, shift bits of v, release
	idle <cycles>       run the processing clock
	state               print DAC and weight store
	stats               print transaction counters
`

var errEmulatorOnly = errors.New("only available on the emulator")

// interp runs the line-oriented command language of run and shell.
type interp struct {
	t   *target
	out io.Writer
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}

func (in *interp) exec(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil
	}
	verb, args := strings.ToLower(f[0]), f[1:]

	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: want %d arguments, got %d", verb, n, len(args))
		}
		return nil
	}
	ctrl := in.t.ctrl

	switch verb {
	case "help":
		fmt.Fprint(in.out, interpHelp)
		return nil

	case "nop":
		if err := want(0); err != nil {
			return err
		}
		return in.report(ctrl.Exec(spicore.OpNOP, 0))

	case "dac":
		if err := want(1); err != nil {
			return err
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		err = ctrl.SetDAC(v)
		return in.report(ctrl.Status(), err)

	case "adc":
		if err := want(0); err != nil {
			return err
		}
		l, err := ctrl.ReadADC()
		if err == nil {
			fmt.Fprintf(in.out, "adc bit0=%s\n", l)
		}
		return in.report(ctrl.Status(), err)

	case "prog":
		if err := want(1); err != nil {
			return err
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		err = ctrl.ProgramWeight(v)
		return in.report(ctrl.Status(), err)

	case "status":
		if err := want(0); err != nil {
			return err
		}
		return in.report(ctrl.ReadStatus())

	case "cmd":
		if err := want(2); err != nil {
			return err
		}
		op, err := spicore.ParseOpcode(args[0])
		if err != nil {
			return err
		}
		data, err := parseByte(args[1])
		if err != nil {
			return err
		}
		return in.report(ctrl.Exec(op, data))

	case "gate":
		if err := want(1); err != nil {
			return err
		}
		switch strings.ToLower(args[0]) {
		case "on", "1", "high":
			return ctrl.SetProgramEnable(gpio.High)
		case "off", "0", "low":
			return ctrl.SetProgramEnable(gpio.Low)
		}
		return fmt.Errorf("gate: want on or off, got %q", args[0])

	case "reset":
		if err := want(0); err != nil {
			return err
		}
		if err := in.t.reset(); err != nil {
			return err
		}
		return in.report(ctrl.Status(), nil)

	case "flags":
		if err := want(0); err != nil {
			return err
		}
		return in.report(ctrl.Status(), nil)
	}

	return in.execEmulator(verb, args, want)
}

func (in *interp) execEmulator(verb string, args []string, want func(int) error) error {
	bus := in.t.bus
	switch verb {
	case "sample", "abort", "idle", "state", "stats":
		if bus == nil {
			return fmt.Errorf("%s: %w", verb, errEmulatorOnly)
		}
	default:
		return fmt.Errorf("unknown command %q", verb)
	}

	switch verb {
	case "sample":
		if err := want(1); err != nil {
			return err
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		bus.SetADC(v)

	case "abort":
		if err := want(2); err != nil {
			return err
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid bit count %q", args[1])
		}
		cs := bus.Pins().CS
		if err := cs.Out(gpio.Low); err != nil {
			return err
		}
		perr := bus.Partial(v, n)
		if err := cs.Out(gpio.High); err != nil {
			return err
		}
		if perr != nil {
			return perr
		}
		return in.report(in.t.ctrl.Status(), nil)

	case "idle":
		if err := want(1); err != nil {
			return err
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid cycle count %q", args[0])
		}
		bus.Idle(n)

	case "state":
		if err := want(0); err != nil {
			return err
		}
		st := bus.State()
		fmt.Fprintf(in.out, "dac=0x%X weight=0x%02X status=%s cycles=%d\n",
			st.DAC, st.Weight, st.Status, bus.Cycles())

	case "stats":
		if err := want(0); err != nil {
			return err
		}
		s := bus.Stats()
		fmt.Fprintf(in.out, "transactions=%d aborted=%d errors=%d programmed=%d\n",
			s.Transactions, s.Aborted, s.Errors, s.Programmed)
	}
	return nil
}

// report prints the flags. Flag errors raised by the chip are part of the
// output, not a failure of the interpreter.
func (in *interp) report(sr spicore.Status, err error) error {
	var cerr *spicore.CommandError
	if err != nil && !errors.As(err, &cerr) {
		return err
	}
	fmt.Fprintln(in.out, formatStatus(sr))
	if cerr != nil {
		fmt.Fprintf(in.out, "%s %v\n", color.YellowString("warning:"), cerr)
	}
	return nil
}

func formatStatus(sr spicore.Status) string {
	flag := func(name string, on bool, c color.Attribute) string {
		if !on {
			return name + "=0"
		}
		return color.New(c, color.Bold).Sprint(name + "=1")
	}
	return strings.Join([]string{
		flag("READY", sr.Ready(), color.FgGreen),
		flag("ERROR", sr.Error(), color.FgRed),
		flag("PROG_DONE", sr.ProgDone(), color.FgCyan),
		flag("MISO", sr.MISO(), color.FgBlue),
	}, " ")
}
