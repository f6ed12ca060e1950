package spicore

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

func newBench(t *testing.T, opts ...Option) (*Bus, *Controller) {
	t.Helper()
	b := NewBus(newTestChip(t, opts...))
	ctrl, err := b.Controller()
	if err != nil {
		t.Fatal(err)
	}
	return b, ctrl
}

func TestBusSetDAC(t *testing.T) {
	for _, stages := range []int{2, 3} {
		b, ctrl := newBench(t, WithSyncStages(stages))
		for _, v := range []byte{0xA5, 0x7B, 0x7B, 0x00, 0xFF} {
			if _, err := ctrl.Exec(OpSetDAC, v); err != nil {
				t.Fatalf("%d stages: SET_DAC(%#x): %v", stages, v, err)
			}
			if got := b.Outputs().DAC; got != v&0x0F {
				t.Errorf("%d stages: DAC = %#x after SET_DAC(%#x)", stages, got, v)
			}
		}
	}
}

func TestBusNopLeavesState(t *testing.T) {
	b, ctrl := newBench(t)
	if err := ctrl.SetDAC(0x9); err != nil {
		t.Fatal(err)
	}
	before := b.State()
	if err := ctrl.Nop(); err != nil {
		t.Fatal(err)
	}
	if after := b.State(); after != before {
		t.Errorf("NOP changed state from %+v to %+v", before, after)
	}
}

func TestBusProgramWeight(t *testing.T) {
	b, ctrl := newBench(t)

	_, err := ctrl.Exec(OpProgWeight, 0x55)
	if !errors.Is(err, ErrProgramDenied) {
		t.Fatalf("without gate: err = %v, want ErrProgramDenied", err)
	}
	if st := b.State(); st.Weight != 0 || st.Status.ProgDone() || !st.Status.Error() {
		t.Errorf("without gate: state = %+v", st)
	}

	if err := ctrl.ProgramWeight(0x33); err != nil {
		t.Fatalf("with gate: %v", err)
	}
	st := b.State()
	if st.Weight != 0x33 || !st.Status.ProgDone() || st.Status.Error() {
		t.Errorf("with gate: state = %+v", st)
	}
	if b.Pins().ProgEn.(gpio.PinIO).Read() != gpio.Low {
		t.Error("gate left raised")
	}
}

// The gate is looked at when the data byte completes, not at selection.
func TestBusGateSampledAtExecute(t *testing.T) {
	tests := []struct {
		name        string
		atSelect    gpio.Level
		atExecute   gpio.Level
		wantProgram bool
	}{
		{"raised late", gpio.Low, gpio.High, true},
		{"dropped early", gpio.High, gpio.Low, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ctrl := newBench(t)
			conn, err := b.Connect(0, spi.Mode0, 8)
			if err != nil {
				t.Fatal(err)
			}
			pins := b.Pins()
			if err := ctrl.SetProgramEnable(tt.atSelect); err != nil {
				t.Fatal(err)
			}
			if err := pins.CS.Out(gpio.Low); err != nil {
				t.Fatal(err)
			}
			if err := conn.Tx([]byte{byte(OpProgWeight)}, nil); err != nil {
				t.Fatal(err)
			}
			if err := ctrl.SetProgramEnable(tt.atExecute); err != nil {
				t.Fatal(err)
			}
			if err := conn.Tx([]byte{0xC3}, nil); err != nil {
				t.Fatal(err)
			}
			if err := pins.CS.Out(gpio.High); err != nil {
				t.Fatal(err)
			}

			st := b.State()
			if got := st.Weight == 0xC3; got != tt.wantProgram {
				t.Errorf("weight = %#x, programmed %v, want %v", st.Weight, got, tt.wantProgram)
			}
			if st.Status.ProgDone() != tt.wantProgram {
				t.Errorf("PROG_DONE = %v", st.Status.ProgDone())
			}
		})
	}
}

func TestBusReadADC(t *testing.T) {
	b, ctrl := newBench(t)
	for _, sample := range []byte{0xAA, 0x55, 0x01, 0xFE} {
		b.SetADC(sample)
		l, err := ctrl.ReadADC()
		if err != nil {
			t.Fatal(err)
		}
		if want := gpio.Level(sample&1 != 0); l != want {
			t.Errorf("sample %#x: MISO = %s, want %s", sample, l, want)
		}
	}
}

func TestBusReadStatus(t *testing.T) {
	b, ctrl := newBench(t)
	sr, err := ctrl.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if sr.MISO() != sr.Ready() || !sr.MISO() {
		t.Errorf("status = %s, want MISO == READY == 1", sr)
	}

	// the response bit stays on MISO through the next transaction
	conn, err := b.Connect(0, spi.Mode0, 8)
	if err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 2)
	if err := b.Pins().CS.Out(gpio.Low); err != nil {
		t.Fatal(err)
	}
	if err := conn.Tx([]byte{byte(OpNOP), 0}, r); err != nil {
		t.Fatal(err)
	}
	if err := b.Pins().CS.Out(gpio.High); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, []byte{0xFF, 0xFF}) {
		t.Errorf("read back %X, want FFFF", r)
	}
}

func TestBusAbort(t *testing.T) {
	tests := []struct {
		name  string
		whole []byte
		bits  int
	}{
		{"mid command", nil, 4},
		{"after command", []byte{byte(OpSetDAC)}, 0},
		{"mid data", []byte{byte(OpSetDAC)}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ctrl := newBench(t)
			if err := ctrl.SetDAC(0x3); err != nil {
				t.Fatal(err)
			}
			before := b.State()

			conn, err := b.Connect(0, spi.Mode0, 8)
			if err != nil {
				t.Fatal(err)
			}
			cs := b.Pins().CS
			if err := cs.Out(gpio.Low); err != nil {
				t.Fatal(err)
			}
			if len(tt.whole) != 0 {
				if err := conn.Tx(tt.whole, nil); err != nil {
					t.Fatal(err)
				}
			}
			if err := b.Partial(0xFF, tt.bits); err != nil {
				t.Fatal(err)
			}
			if err := cs.Out(gpio.High); err != nil {
				t.Fatal(err)
			}

			if after := b.State(); after != before {
				t.Errorf("aborted transaction changed state from %+v to %+v", before, after)
			}
			if got := b.Stats().Aborted; got != 1 {
				t.Errorf("aborted = %d, want 1", got)
			}

			// next transaction starts from a clean receiver
			if err := ctrl.SetDAC(0xC); err != nil {
				t.Fatal(err)
			}
			if got := b.Outputs().DAC; got != 0xC {
				t.Errorf("DAC = %#x after recovery, want 0xc", got)
			}
		})
	}
}

func TestBusErrorRecovery(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		data byte
	}{
		{"nop", OpNOP, 0},
		{"set dac", OpSetDAC, 0x2},
		{"read status", OpReadStatus, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ctrl := newBench(t)
			if _, err := ctrl.Exec(0xFF, 0x00); !errors.Is(err, ErrInvalidCommand) {
				t.Fatalf("err = %v, want ErrInvalidCommand", err)
			}
			if !b.Outputs().Status.Error() {
				t.Fatal("ERROR not raised")
			}
			if _, err := ctrl.Exec(tt.op, tt.data); err != nil {
				t.Fatal(err)
			}
			if sr := ctrl.Status(); sr.Error() || !sr.Ready() {
				t.Errorf("status = %s", sr)
			}
		})
	}
}

func TestBusReset(t *testing.T) {
	b, ctrl := newBench(t)
	if err := ctrl.ProgramWeight(0x21); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.SetDAC(0xF); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.ReadStatus(); err != nil {
		t.Fatal(err)
	}

	b.Reset()
	out := b.Outputs()
	if out.Status != StatusReady || out.DAC != 0 {
		t.Errorf("outputs after reset = %s dac %#x", out.Status, out.DAC)
	}
	if sr := ctrl.Status(); sr != StatusReady {
		t.Errorf("pins after reset = %s", sr)
	}
}

func TestBusConnect(t *testing.T) {
	tests := []struct {
		name    string
		f       physic.Frequency
		mode    spi.Mode
		bits    int
		wantErr bool
	}{
		{name: "harness timing", mode: spi.Mode0, bits: 8},
		{name: "1 MHz", f: physic.MegaHertz, mode: spi.Mode0, bits: 8},
		{name: "too fast", f: 5 * physic.MegaHertz, mode: spi.Mode0, bits: 8, wantErr: true},
		{name: "mode 3", mode: spi.Mode3, bits: 8, wantErr: true},
		{name: "16 bits", mode: spi.Mode0, bits: 16, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBus(newTestChip(t))
			_, err := b.Connect(tt.f, tt.mode, tt.bits)
			if (err != nil) != tt.wantErr {
				t.Errorf("Connect() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBusAtFrequency(t *testing.T) {
	b := NewBus(newTestChip(t))
	conn, err := b.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := NewController(conn, b.Pins())
	if err := ctrl.SetDAC(0x6); err != nil {
		t.Fatal(err)
	}
	if got := b.Outputs().DAC; got != 0x6 {
		t.Errorf("DAC = %#x, want 0x6", got)
	}
}

func TestBusLimitSpeed(t *testing.T) {
	b := NewBus(newTestChip(t))
	if err := b.LimitSpeed(0); err == nil {
		t.Error("LimitSpeed(0) succeeded")
	}
	if err := b.LimitSpeed(100 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Connect(physic.MegaHertz, spi.Mode0, 8); err != nil {
		t.Fatal(err)
	}
	if b.timing.half != 34 {
		t.Errorf("half period = %d cycles, want 34", b.timing.half)
	}
}

func TestBusClose(t *testing.T) {
	b, ctrl := newBench(t)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Exec(OpNOP, 0); !errors.Is(err, errBusClosed) {
		t.Errorf("Exec after Close: err = %v", err)
	}
	if _, err := b.Connect(0, spi.Mode0, 8); !errors.Is(err, errBusClosed) {
		t.Errorf("Connect after Close: err = %v", err)
	}
	if err := b.Partial(0, 3); !errors.Is(err, errBusClosed) {
		t.Errorf("Partial after Close: err = %v", err)
	}
}

func TestTimingFor(t *testing.T) {
	clock := 10 * physic.MegaHertz
	tm, err := timingFor(clock, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}
	if tm.half != 4 {
		t.Errorf("half = %d, want 4", tm.half)
	}
	if tm.setup != harnessTiming.setup || tm.release != harnessTiming.release {
		t.Errorf("framing times changed: %+v", tm)
	}
	if f := tm.frequency(clock); f > physic.MegaHertz {
		t.Errorf("frequency = %s, faster than requested", f)
	}
	if _, err := timingFor(clock, 4*physic.MegaHertz); err == nil {
		t.Error("4 MHz SCK accepted against a 10 MHz clock")
	}
}
