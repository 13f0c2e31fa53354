package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headlessctl/headlessctl/internal/headless"
)

var usersWorld int

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users of the focused world",
	Long: `List the users connected to the console's focused world.

Use --world to focus another world first.

Examples:
  headlessctl users
  headlessctl users --world 1`,
	Args: cobra.NoArgs,
	RunE: runUsers,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.Flags().IntVarP(&usersWorld, "world", "w", -1, "focus the world with this index first")
}

func runUsers(cmd *cobra.Command, args []string) error {
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

	var users []headless.UserSession
	if usersWorld >= 0 {
		users, err = c.Inspector.FocusedUsers(ctx, usersWorld)
	} else {
		users, err = c.Inspector.Users(ctx)
	}
	if err != nil {
		return a.explain(err)
	}
	if jsonOutput {
		return printJSON(users)
	}
	if len(users) == 0 {
		fmt.Println("No users connected.")
		return nil
	}
	printUsers(os.Stdout, users, "")
	return nil
}

func printUsers(out io.Writer, users []headless.UserSession, indent string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%sUSERNAME\tID\tROLE\tPRESENT\tPING\tFPS\tSILENCED\n", indent)
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%s%s\t%s\t%s\t%t\t%dms\t%.1f\t%t\n",
			indent,
			u.Username,
			u.UserID,
			u.Role,
			u.Present,
			u.Ping,
			u.FPS,
			u.Silenced,
		)
	}
	_ = w.Flush()
}
