package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/headlessctl/headlessctl/internal/config"
	"github.com/headlessctl/headlessctl/internal/network"
	"github.com/headlessctl/headlessctl/internal/server"
	"github.com/headlessctl/headlessctl/internal/session"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and console websocket",
	Long: `Serve the REST API and the console websocket for every configured container.

Each container's console is monitored in the background; its output is kept in
a rolling history and streamed to websocket clients. With the local runtime the
headless processes are started here and stopped on exit.

Examples:
  headlessctl serve
  headlessctl serve --listen 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from server.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(func(cfg *config.Config, opts *session.Options) error {
		if !cfg.History.Persist {
			return nil
		}
		dir, err := cfg.HistoryDir()
		if err != nil {
			return err
		}
		opts.Store, err = session.NewStoreAt(dir)
		return err
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := commandContext()
	defer stop()

	if a.cfg.Runtime == config.RuntimeLocal {
		for _, name := range a.cfg.Containers {
			if err := a.manager.Start(ctx, name); err != nil {
				return fmt.Errorf("failed to start %s: %w", name, err)
			}
		}
	}

	a.loader.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			a.logger.Warn("ignoring invalid config change", "error", err)
			return
		}
		a.registry.SetHistorySize(cfg.Console.HistorySize)
	})

	listen := serveListen
	if listen == "" {
		listen = a.cfg.Server.Listen
	}
	srv := server.New(a.registry, server.Options{
		Origins:          network.Parse(a.cfg.Server.AllowedOrigins),
		HeadlessConfig:   a.cfg.Server.HeadlessConfig,
		SubscriberBuffer: a.cfg.Monitor.SubscriberBuffer,
		Logger:           a.logger,
	})

	a.logger.Info("starting headlessctl",
		"runtime", a.cfg.Runtime,
		"containers", a.cfg.Containers,
		"config", a.loader.ConfigFile(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.registry.Run(ctx)
	})
	g.Go(func() error {
		return srv.Serve(ctx, listen)
	})
	return g.Wait()
}
