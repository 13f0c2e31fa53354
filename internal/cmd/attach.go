package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/headlessctl/headlessctl/internal/console"
)

var attachLogs bool

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach the terminal to the raw console",
	Long: `Attach the terminal to the headless console without any cleaning.

Type ~. at the start of a line to detach, ~? for help. Detaching leaves the
server running.

Examples:
  headlessctl attach
  headlessctl attach --logs -c second-headless`,
	Args: cobra.NoArgs,
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().BoolVar(&attachLogs, "logs", false, "replay buffered output before streaming")
}

func runAttach(cmd *cobra.Command, args []string) error {
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

	ch, err := a.manager.Attach(ctx, c.Name, console.AttachOptions{
		Stdin:  true,
		Stdout: true,
		Stderr: true,
		Stream: true,
		Logs:   attachLogs,
	})
	if err != nil {
		return a.explain(err)
	}
	defer ch.Close()

	fmt.Fprintf(os.Stderr, "Attached to %s. Type ~. to detach, ~? for help.\n", c.Name)

	err = pipeConsole(ch, os.Stdin, os.Stdout)
	if errors.Is(err, ErrUserDetach) {
		fmt.Fprintf(os.Stderr, "\r\nDetached from %s.\n", c.Name)
		return nil
	}
	return err
}

// pipeConsole copies between the channel and the terminal until either side
// ends or the user detaches.
func pipeConsole(ch console.Channel, stdin *os.File, stdout io.Writer) error {
	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	escape := newEscapeWriter(ch, stdout)
	errCh := make(chan error, 2)

	go func() {
		_, err := io.Copy(stdout, ch)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(escape, stdin)
		errCh <- err
	}()

	select {
	case <-escape.Detached():
		return ErrUserDetach
	case err := <-errCh:
		if err != nil {
			return &console.ChannelError{Op: "attach", Err: err}
		}
		return nil
	}
}
