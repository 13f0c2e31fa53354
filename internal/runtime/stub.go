package runtime

import (
	"context"
	"time"

	"github.com/headlessctl/headlessctl/internal/console"
)

// StubManager is the runtime used when no container backend is configured.
type StubManager struct{}

func NewStubManager() *StubManager {
	return &StubManager{}
}

func (m *StubManager) Attach(ctx context.Context, name string, opts console.AttachOptions) (console.Channel, error) {
	return nil, ErrRuntimeUnavailable
}

func (m *StubManager) Status(ctx context.Context, name string) (ContainerStatus, error) {
	return ContainerStatus{}, ErrRuntimeUnavailable
}

func (m *StubManager) Start(ctx context.Context, name string) error {
	return ErrRuntimeUnavailable
}

func (m *StubManager) Stop(ctx context.Context, name string, timeout time.Duration) error {
	return ErrRuntimeUnavailable
}

func (m *StubManager) Restart(ctx context.Context, name string, timeout time.Duration) error {
	return ErrRuntimeUnavailable
}

func (m *StubManager) Kill(ctx context.Context, name string, signal string) error {
	return ErrRuntimeUnavailable
}

func (m *StubManager) Wait(ctx context.Context, name string, timeout time.Duration) (int64, error) {
	return 0, ErrRuntimeUnavailable
}

func (m *StubManager) Close() error {
	return nil
}
