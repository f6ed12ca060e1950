package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] command [args...]",
	Short: "run one command and print the flags.",
	Long: `Run one command of the interpreter language (see "spicore exec help")
against the target and print the resulting flags.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer t.close()

		in := &interp{t: t, out: os.Stdout}
		if getFlag(cmd, "gate") {
			if err := in.exec("gate on"); err != nil {
				return err
			}
		}
		return in.exec(strings.Join(args, " "))
	},
}

func init() {
	execCmd.Flags().Bool("gate", false, "raise the programming-enable gate first")
	rootCmd.AddCommand(execCmd)
}
