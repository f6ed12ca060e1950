package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/host/v3/ftdi"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "print FT2232H information (requires --ftdi).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !getFlag(cmd, "ftdi") {
			return errors.New("info needs a board, use --ftdi")
		}
		t, err := openTarget(cmd)
		if err != nil {
			return err
		}
		ft := t.dev.FTDI

		// Reference: https://github.com/periph/cmd/tree/main/ftdi-list
		i := ftdi.Info{}
		ft.Info(&i)
		fmt.Printf("Type:            %s\n", i.Type)
		fmt.Printf("Vendor ID:       %#04x\n", i.VenID)
		fmt.Printf("Device ID:       %#04x\n", i.DevID)

		ee := ftdi.EEPROM{}
		if err := ft.EEPROM(&ee); err != nil {
			return fmt.Errorf("failed to read EEPROM: %w", err)
		}
		fmt.Printf("Manufacturer:    %s\n", ee.Manufacturer)
		fmt.Printf("Desc:            %s\n", ee.Desc)
		fmt.Printf("Serial:          %s\n", ee.Serial)

		for _, p := range ft.Header() {
			fmt.Printf("%s: %s\n", p, p.Function())
		}

		fmt.Printf("Chip flags:      %s\n", formatStatus(t.ctrl.Status()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
