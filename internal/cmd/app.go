package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/headlessctl/headlessctl/internal/config"
	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/headless"
	"github.com/headlessctl/headlessctl/internal/runtime"
	"github.com/headlessctl/headlessctl/internal/session"
)

// app is the wiring shared by every command: configuration, the container
// runtime and the console registry.
type app struct {
	loader   *config.Loader
	cfg      *config.Config
	logger   *slog.Logger
	manager  runtime.Manager
	registry *session.Registry
}

// setup loads the configuration and builds the runtime and registry. tune may
// adjust the registry options for one command.
func setup(tune func(*config.Config, *session.Options) error) (*app, error) {
	loader, err := config.NewLoader(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	manager, err := runtime.New(cfg.Runtime, runtime.Options{
		Command:    cfg.Local.Command,
		Dir:        cfg.Local.Dir,
		Containers: cfg.Containers,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s runtime: %w", cfg.Runtime, err)
	}

	opts := registryOptions(cfg, logger)
	if tune != nil {
		if err := tune(cfg, &opts); err != nil {
			manager.Close()
			return nil, err
		}
	}

	return &app{
		loader:   loader,
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		registry: session.NewRegistry(manager, cfg.Containers, opts),
	}, nil
}

func registryOptions(cfg *config.Config, logger *slog.Logger) session.Options {
	return session.Options{
		Session: console.SessionConfig{
			Terminator:     cfg.Console.LineTerminator,
			PollInterval:   cfg.Console.PollInterval,
			IdlePolls:      cfg.Console.IdlePolls,
			DefaultTimeout: cfg.Console.CommandTimeout,
			IncludeHistory: cfg.Console.IncludeHistory,
		},
		Monitor: console.MonitorConfig{
			PollInterval:   cfg.Console.PollInterval,
			Wake:           cfg.Monitor.Wake,
			Terminator:     cfg.Console.LineTerminator,
			IncludeHistory: cfg.Monitor.IncludeHistory,
			MaxPartial:     cfg.Monitor.MaxPartial,
			KeepPartial:    cfg.Monitor.KeepPartial,
		},
		MonitorEnabled: cfg.Monitor.Enabled,
		HistorySize:    cfg.Console.HistorySize,
		Inspector: headless.InspectorConfig{
			SettleDelay:     cfg.Inspector.SettleDelay,
			ConfirmAttempts: cfg.Inspector.ConfirmAttempts,
		},
		Logger: logger,
	}
}

// console returns the console selected with --container.
func (a *app) console() (*session.Console, error) {
	name := container
	if name == "" {
		name = a.cfg.Containers[0]
	}
	c, err := a.registry.Get(name)
	if errors.Is(err, session.ErrConsoleNotFound) {
		return nil, fmt.Errorf("container %s is not configured (known: %v)", name, a.registry.List())
	}
	return c, err
}

// Close releases the runtime.
func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		a.logger.Debug("failed to close runtime", "error", err)
	}
}

// explain adds a hint to errors a user can act on.
func (a *app) explain(err error) error {
	switch {
	case err == nil:
		return nil
	case console.IsNotFound(err):
		return fmt.Errorf("%w (is the container running under that name?)", err)
	case errors.Is(err, runtime.ErrNotRunning) && a.cfg.Runtime == config.RuntimeLocal:
		return fmt.Errorf("%w (local processes only run inside 'headlessctl serve'; use its HTTP API)", err)
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandContext is cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
