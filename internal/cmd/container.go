package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	containerTimeout time.Duration
	containerSignal  string
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Control the container hosting the headless server",
	Long: `Start, stop and inspect the container that hosts a headless server.

The container is chosen with --container and defaults to the first configured
one.

Examples:
  headlessctl container start
  headlessctl container stop --timeout 30s
  headlessctl container kill --signal SIGINT`,
}

var containerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle("start")
	},
}

var containerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle("stop")
	},
}

var containerRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle("restart")
	},
}

var containerKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Send a signal to the container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle("kill")
	},
}

var containerWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the container to stop and print its exit code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle("wait")
	},
}

func init() {
	rootCmd.AddCommand(containerCmd)
	containerCmd.AddCommand(containerStartCmd, containerStopCmd, containerRestartCmd, containerKillCmd, containerWaitCmd)

	for _, c := range []*cobra.Command{containerStopCmd, containerRestartCmd, containerWaitCmd} {
		c.Flags().DurationVarP(&containerTimeout, "timeout", "t", 0, "how long to wait before giving up (0 uses the runtime default)")
	}
	containerKillCmd.Flags().StringVarP(&containerSignal, "signal", "s", "SIGKILL", "signal to send")
}

func runLifecycle(action string) error {
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

	switch action {
	case "start":
		err = a.manager.Start(ctx, c.Name)
	case "stop":
		err = a.manager.Stop(ctx, c.Name, containerTimeout)
	case "restart":
		err = a.manager.Restart(ctx, c.Name, containerTimeout)
	case "kill":
		err = a.manager.Kill(ctx, c.Name, containerSignal)
	case "wait":
		code, err := a.manager.Wait(ctx, c.Name, containerTimeout)
		if err != nil {
			return a.explain(err)
		}
		if jsonOutput {
			return printJSON(map[string]any{"container": c.Name, "exitCode": code})
		}
		fmt.Printf("%s exited with code %d\n", c.Name, code)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, c.Name, a.explain(err))
	}

	a.logger.Debug("container lifecycle", "action", action, "container", c.Name)
	if jsonOutput {
		return printJSON(map[string]any{"container": c.Name, "action": action, "ok": true})
	}
	fmt.Printf("%s: %s ok\n", c.Name, action)
	return nil
}
