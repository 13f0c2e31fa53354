package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/runtime"
)

// logsQuiet ends the backlog once no line has arrived for this long.
const logsQuiet = 500 * time.Millisecond

var (
	logsTail   int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent console output",
	Long: `Print the console output the container has buffered, cleaned of prompts
and color tags.

Examples:
  headlessctl logs
  headlessctl logs -n 100
  headlessctl logs -f`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", console.DefaultHistorySize, "number of lines to print")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new output")
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsTail < 1 {
		return fmt.Errorf("--tail must be at least 1")
	}

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

	cfg := registryOptions(a.cfg, a.logger).Monitor
	cfg.Wake = false
	cfg.IncludeHistory = true

	hub := console.NewHub()
	sub := hub.Subscribe(logsTail + console.DefaultSubscriberBuffer)
	mon := console.NewMonitor(runtime.AttacherFor(a.manager, c.Name), console.NewHistory(1), hub, cfg, a.logger)
	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer func() {
		mon.Stop()
		<-mon.Done()
	}()

	backlog := console.NewHistory(logsTail)
	collectBacklog(ctx, sub, backlog, mon.Done())
	for _, line := range backlog.Recent(0) {
		printLine(line)
	}

	if logsFollow {
		for {
			select {
			case line, ok := <-sub.C():
				if !ok {
					return a.explain(mon.Err())
				}
				printLine(line)
			case <-mon.Done():
				return a.explain(mon.Err())
			case <-ctx.Done():
				return nil
			}
		}
	}

	select {
	case <-mon.Done():
		return a.explain(mon.Err())
	default:
		return nil
	}
}

// collectBacklog keeps the newest lines in ring until output goes quiet.
func collectBacklog(ctx context.Context, sub *console.Subscription, ring *console.History, done <-chan struct{}) {
	timer := time.NewTimer(logsQuiet)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-sub.C():
			if !ok {
				return
			}
			ring.Append(line)
			timer.Reset(logsQuiet)
		case <-timer.C:
			return
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func printLine(line console.ConsoleLine) {
	if debug {
		fmt.Printf("%s %s\n", line.At.Format(time.TimeOnly), line.Text)
		return
	}
	fmt.Println(line.Text)
}
