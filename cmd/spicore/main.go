package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gentam/spicore"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var rootCmd = &cobra.Command{
	Use:   "spicore",
	Short: "Drive the SPI command core, emulated or on an FT2232H board.",
	Long: `Drive the SPI command core of the control chip.

By default commands run against a cycle-level emulator of the chip. With
--ftdi they go to a board wired to an FT2232H.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case getFlag(cmd, "trace"):
			log.SetLevel(log.TraceLevel)
		case getFlag(cmd, "verbose"):
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("ftdi", false, "use a board on an FT2232H instead of the emulator")
	rootCmd.PersistentFlags().Uint("sync-stages", 2, "emulator input synchronizer depth (2 or 3)")
	rootCmd.PersistentFlags().Uint("sck-khz", 0, "emulator SCK frequency in kHz (0: bench timing)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every transaction")
	rootCmd.PersistentFlags().Bool("trace", false, "log every received byte")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func getFlag(cmd *cobra.Command, name string) bool {
	r, err := cmd.Flags().GetBool(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return r
}

func getUint(cmd *cobra.Command, name string) uint {
	r, err := cmd.Flags().GetUint(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return r
}

// target is what commands run against: the emulator bus or a real board.
type target struct {
	ctrl *spicore.Controller
	bus  *spicore.Bus
	dev  *spicore.Device
}

func openTarget(cmd *cobra.Command) (*target, error) {
	if getFlag(cmd, "ftdi") {
		d, err := spicore.NewDevice()
		if err != nil {
			return nil, err
		}
		return &target{ctrl: d.Controller(), dev: d}, nil
	}

	chip, err := spicore.New(
		spicore.WithLogger(log.StandardLogger()),
		spicore.WithSyncStages(int(getUint(cmd, "sync-stages"))),
	)
	if err != nil {
		return nil, err
	}
	return newEmulatorTarget(chip, physic.Frequency(getUint(cmd, "sck-khz"))*physic.KiloHertz)
}

func newEmulatorTarget(chip *spicore.Chip, sck physic.Frequency) (*target, error) {
	bus := spicore.NewBus(chip)
	conn, err := bus.Connect(sck, spi.Mode0, 8)
	if err != nil {
		return nil, err
	}
	return &target{
		ctrl: spicore.NewController(conn, bus.Pins()),
		bus:  bus,
	}, nil
}

// reset pulses the chip reset line.
func (t *target) reset() error {
	if t.bus != nil {
		t.bus.Reset()
		return nil
	}
	if err := t.dev.ResetChip(gpio.Low); err != nil {
		return err
	}
	return t.dev.ResetChip(gpio.High)
}

func (t *target) close() {
	if t.bus != nil {
		t.bus.Close()
	}
}
