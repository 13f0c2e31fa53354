// Package runtime is the container-runtime collaborator: it attaches console
// channels and drives the lifecycle of the containers that host headless
// servers.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/headlessctl/headlessctl/internal/console"
)

// ErrRuntimeUnavailable is returned by every call of the stub runtime.
var ErrRuntimeUnavailable = errors.New("container runtime not available")

// ErrNotRunning is returned when attaching to a local process that is not
// running.
var ErrNotRunning = errors.New("process not running")

// Runtime kinds accepted by New.
const (
	KindDocker = "docker"
	KindLocal  = "local"
	KindStub   = "stub"
)

// DefaultStopTimeout is used when a lifecycle call gets a zero timeout.
const DefaultStopTimeout = 10 * time.Second

// ContainerStatus describes a container's liveness.
type ContainerStatus struct {
	Status    string    `json:"status"`
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Running   bool      `json:"running"`
}

// Manager attaches console channels to named containers and controls their
// lifecycle.
type Manager interface {
	Attach(ctx context.Context, name string, opts console.AttachOptions) (console.Channel, error)
	Status(ctx context.Context, name string) (ContainerStatus, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string, timeout time.Duration) error
	Restart(ctx context.Context, name string, timeout time.Duration) error
	Kill(ctx context.Context, name string, signal string) error
	// Wait blocks until the container stops or timeout passes and returns
	// its exit code.
	Wait(ctx context.Context, name string, timeout time.Duration) (int64, error)
	Close() error
}

// Options configures New.
type Options struct {
	// Command and Dir start the headless server for the local runtime.
	Command []string
	Dir     string
	// Containers lists the names the local runtime manages.
	Containers []string
	Logger     *slog.Logger
}

// New returns the Manager for kind.
func New(kind string, opts Options) (Manager, error) {
	switch kind {
	case KindDocker, "":
		m, err := NewDockerManager(opts.Logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindLocal:
		m, err := NewLocalManager(opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindStub:
		return NewStubManager(), nil
	}
	return nil, fmt.Errorf("unknown runtime %q", kind)
}

// AttacherFor binds m to one container so it can back a console session or
// monitor.
func AttacherFor(m Manager, name string) console.Attacher {
	return &containerAttacher{m: m, name: name}
}

type containerAttacher struct {
	m    Manager
	name string
}

func (a *containerAttacher) Attach(ctx context.Context, opts console.AttachOptions) (console.Channel, error) {
	return a.m.Attach(ctx, a.name, opts)
}

func stopTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultStopTimeout
	}
	return d
}
