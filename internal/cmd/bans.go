package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "List banned users",
	Args:  cobra.NoArgs,
	RunE:  runBans,
}

func init() {
	rootCmd.AddCommand(bansCmd)
}

func runBans(cmd *cobra.Command, args []string) error {
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

	bans, err := c.Inspector.Bans(ctx)
	if err != nil {
		return a.explain(err)
	}
	if jsonOutput {
		return printJSON(bans)
	}
	if len(bans) == 0 {
		fmt.Println("No banned users.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "USERNAME\tUSER ID")
	_, _ = fmt.Fprintln(w, "--------\t-------")
	for _, b := range bans {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Username, b.UserID)
	}
	_ = w.Flush()
	return nil
}
