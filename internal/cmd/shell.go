package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/headless"
	"github.com/headlessctl/headlessctl/internal/runtime"
	"github.com/headlessctl/headlessctl/internal/session"
)

var shellMonitor bool

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive console with cleaned replies",
	Long: `Open an interactive prompt that runs each line as a console command and
prints the cleaned reply. Type exit or quit to leave.

With --monitor, output the server prints on its own (joins, leaves, errors)
is shown between replies.

Examples:
  headlessctl shell
  headlessctl shell --monitor`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().BoolVar(&shellMonitor, "monitor", false, "show unsolicited console output")
}

// lineReader is satisfied by term.Terminal and by the plain stdin fallback.
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct {
	s *bufio.Scanner
}

func (r scannerReader) ReadLine() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

func runShell(cmd *cobra.Command, args []string) error {
	a, err := setup(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.console()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	var (
		in  lineReader
		out io.Writer = os.Stdout
	)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)

		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, c.Name+"> ")
		in, out = t, t
	} else {
		in = scannerReader{s: bufio.NewScanner(os.Stdin)}
	}

	if shellMonitor {
		stop, err := startShellMonitor(ctx, a, c, out)
		if err != nil {
			return err
		}
		defer stop()
	}

	return shellLoop(ctx, c.Inspector, in, out)
}

// shellLoop runs each input line as a command until exit or EOF, or until ctx
// ends.
func shellLoop(ctx context.Context, in *headless.Inspector, lines lineReader, out io.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		text := strings.TrimSpace(line)
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := in.Exec(ctx, console.CommandRequest{Text: text})
		if err != nil {
			fmt.Fprintf(out, "error: %v\r\n", err)
			if console.IsNotFound(err) {
				return err
			}
			continue
		}
		for _, l := range resp.Lines {
			fmt.Fprintf(out, "%s\r\n", l.Text)
		}
	}
}

func startShellMonitor(ctx context.Context, a *app, c *session.Console, out io.Writer) (func(), error) {
	cfg := registryOptions(a.cfg, a.logger).Monitor
	cfg.Wake = false
	cfg.IncludeHistory = false

	hub := console.NewHub()
	unsubscribe := hub.SubscribeFunc(func(line console.ConsoleLine) {
		fmt.Fprintf(out, "%s\r\n", line.Text)
	})
	mon := console.NewMonitor(runtime.AttacherFor(a.manager, c.Name), console.NewHistory(1), hub, cfg, a.logger)
	if err := mon.Start(ctx); err != nil {
		unsubscribe()
		return nil, err
	}
	return func() {
		mon.Stop()
		<-mon.Done()
		unsubscribe()
	}, nil
}
