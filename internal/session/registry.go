// Package session owns the per-container consoles: one command session, one
// monitor, the rolling history and the subscriber hub for every managed
// container.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/headless"
	"github.com/headlessctl/headlessctl/internal/runtime"
)

// ErrConsoleNotFound is returned for a container the registry does not manage.
var ErrConsoleNotFound = errors.New("console not found")

// Console bundles everything that talks to one container's console.
type Console struct {
	Name      string
	Session   *console.Session
	Monitor   *console.Monitor
	History   *console.History
	Hub       *console.Hub
	Inspector *headless.Inspector
}

// Options configures a Registry.
type Options struct {
	Session        console.SessionConfig
	Monitor        console.MonitorConfig
	MonitorEnabled bool
	HistorySize    int
	Inspector      headless.InspectorConfig
	// Store persists history across restarts when set.
	Store *Store
	// NewBackOff builds the retry policy of a monitor. Defaults to an
	// exponential backoff that never gives up.
	NewBackOff func() backoff.BackOff
	Logger     *slog.Logger
}

// Registry creates and supervises consoles for a fixed set of containers.
type Registry struct {
	manager runtime.Manager
	opts    Options
	logger  *slog.Logger

	mu       sync.RWMutex
	consoles map[string]*Console
	names    []string

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewRegistry creates a console for every name. Nothing is attached until
// Run starts the monitors or a command is executed.
func NewRegistry(manager runtime.Manager, names []string, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}

	r := &Registry{
		manager:  manager,
		opts:     opts,
		logger:   opts.Logger,
		consoles: make(map[string]*Console, len(names)),
	}
	for _, name := range names {
		if _, dup := r.consoles[name]; dup {
			continue
		}
		r.consoles[name] = r.newConsole(name)
		r.names = append(r.names, name)
	}
	return r
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (r *Registry) newConsole(name string) *Console {
	logger := r.logger.With("container", name)
	attacher := runtime.AttacherFor(r.manager, name)

	history := console.NewHistory(r.opts.HistorySize)
	if r.opts.Store != nil {
		if snap, err := r.opts.Store.Load(name); err == nil {
			history.Append(snap.Lines...)
			logger.Debug("restored console history", "lines", len(snap.Lines))
		}
	}

	hub := console.NewHub()
	sess := console.NewSession(attacher, r.opts.Session, logger)
	return &Console{
		Name:      name,
		Session:   sess,
		Monitor:   console.NewMonitor(attacher, history, hub, r.opts.Monitor, logger),
		History:   history,
		Hub:       hub,
		Inspector: headless.NewInspector(sess, r.opts.Inspector, logger),
	}
}

// Manager returns the runtime the consoles attach through.
func (r *Registry) Manager() runtime.Manager {
	return r.manager
}

// Get returns the console of name.
func (r *Registry) Get(name string) (*Console, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consoles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConsoleNotFound, name)
	}
	return c, nil
}

// List returns the managed container names in configuration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// SetHistorySize changes the capacity of every history. Existing lines are
// evicted on the next append.
func (r *Registry) SetHistorySize(n int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.consoles {
		c.History.SetCapacity(n)
	}
	r.logger.Info("console history size changed", "size", n)
}

// Run supervises the monitors until ctx is cancelled or Shutdown is called.
// With monitoring disabled it only waits.
func (r *Registry) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if !r.opts.MonitorEnabled {
		<-ctx.Done()
		r.Shutdown()
		return nil
	}

	for _, name := range r.List() {
		c, _ := r.Get(name)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.supervise(ctx, c)
		}()
	}

	<-ctx.Done()
	r.Shutdown()
	return nil
}

// supervise keeps c's monitor running. A missing container ends supervision;
// channel failures are retried with backoff.
func (r *Registry) supervise(ctx context.Context, c *Console) {
	logger := r.logger.With("container", c.Name)
	b := r.opts.NewBackOff()

	op := func() error {
		started := time.Now()
		err := c.Monitor.Run(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			return nil
		case console.IsNotFound(err), errors.Is(err, console.ErrMonitorRunning):
			return backoff.Permanent(err)
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("console monitor failed, retrying", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil && ctx.Err() == nil {
		logger.Error("console monitor gave up", "error", err)
	}
}

// Shutdown stops every monitor, waits for the supervisors, closes the hubs and
// saves history. It is safe to call more than once.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() {
		r.mu.RLock()
		consoles := make([]*Console, 0, len(r.consoles))
		for _, name := range r.names {
			consoles = append(consoles, r.consoles[name])
		}
		cancel := r.cancel
		r.mu.RUnlock()

		if cancel != nil {
			cancel()
		}
		for _, c := range consoles {
			c.Monitor.Stop()
		}
		r.wg.Wait()

		for _, c := range consoles {
			c.Hub.Close()
			if err := r.Save(c.Name, "shutdown"); err != nil {
				r.logger.Warn("failed to save console history", "container", c.Name, "error", err)
			}
		}
		r.logger.Debug("console registry stopped")
	})
}

// Save writes name's history to the store. It is a no-op without a store.
func (r *Registry) Save(name, reason string) error {
	if r.opts.Store == nil {
		return nil
	}
	c, err := r.Get(name)
	if err != nil {
		return err
	}
	return r.opts.Store.Save(&Snapshot{
		Container: name,
		SavedAt:   time.Now(),
		Total:     c.History.Total(),
		Reason:    reason,
		Lines:     c.History.Recent(0),
	})
}
