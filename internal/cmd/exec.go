package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/headlessctl/headlessctl/internal/console"
)

var execTimeout time.Duration

var execCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Run one console command and print the reply",
	Long: `Run one command on the headless console and print its cleaned reply.

The console has no reply framing: the reply ends once the console has been
quiet for a few polls or the timeout passes.

Examples:
  headlessctl exec saveall
  headlessctl exec invite SomeUser
  headlessctl exec --timeout 5s worlds`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().DurationVarP(&execTimeout, "timeout", "t", 0, "reply timeout (default from console.command_timeout)")
}

func runExec(cmd *cobra.Command, args []string) error {
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

	resp, err := c.Inspector.Exec(ctx, console.CommandRequest{
		Text:    strings.Join(args, " "),
		Timeout: execTimeout,
	})
	if err != nil {
		return a.explain(err)
	}

	if jsonOutput {
		return printJSON(resp)
	}
	for _, line := range resp.Lines {
		fmt.Println(line.Text)
	}
	if resp.Reason == console.ReasonTimeout {
		a.logger.Debug("reply truncated by timeout", "command", resp.Command, "elapsed", resp.Elapsed)
	}
	return nil
}
