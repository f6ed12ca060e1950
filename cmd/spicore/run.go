package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] script_file",
	Short: "run a file of commands.",
	Long: `Run the commands of a script file, one per line, against one target.
Use "-" to read the script from standard input. Text after # is ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		t, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer t.close()

		return runScript(cmd.Context(), &interp{t: t, out: os.Stdout}, r)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runScript executes r line by line and stops at the first line the
// interpreter cannot run.
func runScript(ctx context.Context, in *interp, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		log.WithField("line", n).Debug(line)
		if err := in.exec(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}
