package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headlessctl/headlessctl/internal/headless"
)

var worldsDetail bool

var worldsCmd = &cobra.Command{
	Use:   "worlds",
	Short: "List running worlds",
	Long: `List the worlds running on the headless server.

With --detail every world is focused in turn to read its status and users.
This changes the console's focused world.

Examples:
  headlessctl worlds
  headlessctl worlds --detail --json`,
	Args: cobra.NoArgs,
	RunE: runWorlds,
}

func init() {
	rootCmd.AddCommand(worldsCmd)
	worldsCmd.Flags().BoolVarP(&worldsDetail, "detail", "d", false, "focus each world and read its status and users")
}

func runWorlds(cmd *cobra.Command, args []string) error {
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

	if worldsDetail {
		details, err := c.Inspector.InspectAll(ctx)
		if err != nil {
			return a.explain(err)
		}
		if jsonOutput {
			return printJSON(details)
		}
		printWorldDetails(os.Stdout, details)
		return nil
	}

	worlds, err := c.Inspector.Worlds(ctx)
	if err != nil {
		return a.explain(err)
	}
	if jsonOutput {
		return printJSON(worlds)
	}
	printWorlds(os.Stdout, worlds)
	return nil
}

func printWorlds(out io.Writer, worlds []headless.WorldSummary) {
	if len(worlds) == 0 {
		fmt.Fprintln(out, "No running worlds.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tNAME\tUSERS\tPRESENT\tACCESS\tMAX")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t-------\t------\t---")
	for _, world := range worlds {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%d\n",
			world.Index,
			world.Name,
			world.Users,
			world.Present,
			world.AccessLevel,
			world.MaxUsers,
		)
	}
	_ = w.Flush()
}

func printWorldDetails(out io.Writer, details []headless.WorldDetail) {
	if len(details) == 0 {
		fmt.Fprintln(out, "No running worlds.")
		return
	}

	for i, d := range details {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "[%d] %s\n", d.Index, d.Name)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "  Session:\t%s\n", d.SessionID)
		_, _ = fmt.Fprintf(w, "  Users:\t%d (%d present, max %d)\n", d.Users, d.Present, d.MaxUsers)
		_, _ = fmt.Fprintf(w, "  Access:\t%s\n", d.AccessLevel)
		_, _ = fmt.Fprintf(w, "  Uptime:\t%s\n", d.Uptime)
		_, _ = fmt.Fprintf(w, "  Hidden:\t%t\n", d.Hidden)
		if d.Description != "" {
			_, _ = fmt.Fprintf(w, "  Description:\t%s\n", d.Description)
		}
		if len(d.Tags) > 0 {
			_, _ = fmt.Fprintf(w, "  Tags:\t%s\n", strings.Join(d.Tags, ", "))
		}
		if !d.Confirmed {
			_, _ = fmt.Fprintf(w, "  Note:\tstatus could not be confirmed for this world\n")
		}
		_ = w.Flush()

		if len(d.UserList) > 0 {
			printUsers(out, d.UserList, "  ")
		}
	}
}
