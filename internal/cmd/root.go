package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	debug      bool
	container  string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "headlessctl",
	Short: "headlessctl - console control for headless world servers",
	Long: `headlessctl attaches to the admin console of headless world servers running
in containers and turns it into structured data and a live event stream.

Serve the web API and websocket:
  headlessctl serve

Run console commands:
  headlessctl exec saveall
  headlessctl worlds --detail
  headlessctl bans

Follow the console:
  headlessctl logs -f
  headlessctl shell`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(debug))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.headlessctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&container, "container", "c", "", "container to talk to (default is the first configured)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// newLogger returns the process logger: text to stderr, debug level with --debug.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
