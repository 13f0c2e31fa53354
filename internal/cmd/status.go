package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/headlessctl/headlessctl/internal/headless"
	"github.com/headlessctl/headlessctl/internal/runtime"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show container and focused world status",
	Long: `Show whether the container is running and the status of the world the
console currently has focused.

Examples:
  headlessctl status
  headlessctl status -c second-headless --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Container runtime.ContainerStatus `json:"container"`
	World     *headless.WorldStatus   `json:"world,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	cs, err := a.manager.Status(ctx, c.Name)
	if err != nil {
		return a.explain(err)
	}

	report := statusReport{Container: cs}
	if cs.Running {
		st, err := c.Inspector.Status(ctx)
		if err != nil {
			report.Error = a.explain(err).Error()
		} else {
			report.World = &st
		}
	}

	if jsonOutput {
		return printJSON(report)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Container:\t%s\n", c.Name)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", cs.Status)
	if cs.ID != "" {
		_, _ = fmt.Fprintf(w, "ID:\t%s\n", shortID(cs.ID))
	}
	if !cs.StartedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Started:\t%s\n", humanize.Time(cs.StartedAt))
	}
	if st := report.World; st != nil {
		_, _ = fmt.Fprintf(w, "World:\t%s\n", st.Name)
		_, _ = fmt.Fprintf(w, "Session:\t%s\n", st.SessionID)
		_, _ = fmt.Fprintf(w, "Users:\t%d (%d present, max %d)\n", st.CurrentUsers, st.PresentUsers, st.MaxUsers)
		_, _ = fmt.Fprintf(w, "Access:\t%s\n", st.AccessLevel)
		_, _ = fmt.Fprintf(w, "Uptime:\t%s\n", st.Uptime)
	}
	if report.Error != "" {
		_, _ = fmt.Fprintf(w, "World:\tunavailable: %s\n", report.Error)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
