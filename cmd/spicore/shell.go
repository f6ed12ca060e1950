package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "interactive command prompt.",
	Long: `Start an interactive prompt on one target. Type "help" for the command
list and "quit" or Ctrl-D to leave. Without a terminal on standard input the
commands are read as a script.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer t.close()

		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return runScript(cmd.Context(), &interp{t: t, out: os.Stdout}, os.Stdin)
		}
		return shell(fd, t)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func shell(fd int, t *target) error {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, state)

	screen := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	xterm := term.NewTerminal(screen, "spicore> ")
	// raw mode needs \r\n, which the terminal writer adds
	log.SetOutput(xterm)
	defer log.SetOutput(os.Stderr)

	in := &interp{t: t, out: xterm}
	for {
		line, err := xterm.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(line) {
		case "quit", "exit":
			return nil
		}
		if err := in.exec(line); err != nil {
			fmt.Fprintf(xterm, "error: %v\n", err)
		}
	}
}
