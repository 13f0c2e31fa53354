package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/headlessctl/headlessctl/internal/console"
)

// DockerManager talks to the Docker engine.
type DockerManager struct {
	cli    *client.Client
	logger *slog.Logger
}

// NewDockerManager connects using the DOCKER_* environment.
func NewDockerManager(logger *slog.Logger) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerManager{cli: cli, logger: logger}, nil
}

// classify maps engine errors onto the console taxonomy.
func classify(name, op string, err error) error {
	if cerrdefs.IsNotFound(err) {
		return &console.NotFoundError{Container: name}
	}
	return fmt.Errorf("failed to %s container %s: %w", op, name, err)
}

func (m *DockerManager) inspect(ctx context.Context, name string) (container.InspectResponse, error) {
	info, err := m.cli.ContainerInspect(ctx, name)
	if err != nil {
		return container.InspectResponse{}, classify(name, "inspect", err)
	}
	if info.ContainerJSONBase == nil {
		return container.InspectResponse{}, fmt.Errorf("failed to inspect container %s: empty response", name)
	}
	return info, nil
}

// Attach hijacks an attach stream. Containers without a TTY multiplex stdout
// and stderr; their stream is demultiplexed before it reaches the reader.
func (m *DockerManager) Attach(ctx context.Context, name string, opts console.AttachOptions) (console.Channel, error) {
	info, err := m.inspect(ctx, name)
	if err != nil {
		return nil, err
	}

	resp, err := m.cli.ContainerAttach(ctx, name, container.AttachOptions{
		Stream: opts.Stream,
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		Logs:   opts.Logs,
	})
	if err != nil {
		return nil, classify(name, "attach to", err)
	}

	tty := info.Config != nil && info.Config.Tty
	m.logger.Debug("attached to container", "container", name, "tty", tty, "stdin", opts.Stdin)
	return newHijackedChannel(resp, tty), nil
}

func (m *DockerManager) Status(ctx context.Context, name string) (ContainerStatus, error) {
	info, err := m.inspect(ctx, name)
	if err != nil {
		return ContainerStatus{}, err
	}

	st := ContainerStatus{
		Name: strings.TrimPrefix(info.Name, "/"),
		ID:   info.ID,
	}
	if info.State != nil {
		st.Status = string(info.State.Status)
		st.Running = info.State.Running
		if t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
			st.StartedAt = t
		}
	}
	return st, nil
}

func (m *DockerManager) Start(ctx context.Context, name string) error {
	if err := m.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return classify(name, "start", err)
	}
	return nil
}

func (m *DockerManager) Stop(ctx context.Context, name string, timeout time.Duration) error {
	secs := int(stopTimeout(timeout).Seconds())
	if err := m.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return classify(name, "stop", err)
	}
	return nil
}

func (m *DockerManager) Restart(ctx context.Context, name string, timeout time.Duration) error {
	secs := int(stopTimeout(timeout).Seconds())
	if err := m.cli.ContainerRestart(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return classify(name, "restart", err)
	}
	return nil
}

func (m *DockerManager) Kill(ctx context.Context, name string, signal string) error {
	if signal == "" {
		signal = "SIGKILL"
	}
	if err := m.cli.ContainerKill(ctx, name, signal); err != nil {
		return classify(name, "kill", err)
	}
	return nil
}

func (m *DockerManager) Wait(ctx context.Context, name string, timeout time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout(timeout))
	defer cancel()

	statusCh, errCh := m.cli.ContainerWait(ctx, name, container.WaitConditionNotRunning)
	select {
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return st.StatusCode, fmt.Errorf("failed to wait for container %s: %s", name, st.Error.Message)
		}
		return st.StatusCode, nil
	case err := <-errCh:
		return 0, classify(name, "wait for", err)
	}
}

func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// hijackedChannel adapts an attach stream to console.Channel.
type hijackedChannel struct {
	resp   types.HijackedResponse
	reader io.Reader
	pipe   *io.PipeReader
}

func newHijackedChannel(resp types.HijackedResponse, tty bool) *hijackedChannel {
	c := &hijackedChannel{resp: resp, reader: resp.Reader}
	if !tty {
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, resp.Reader)
			pw.CloseWithError(err)
		}()
		c.reader = pr
		c.pipe = pr
	}
	return c
}

func (c *hijackedChannel) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *hijackedChannel) Write(p []byte) (int, error) {
	return c.resp.Conn.Write(p)
}

func (c *hijackedChannel) Close() error {
	c.resp.Close()
	if c.pipe != nil {
		c.pipe.Close()
	}
	return nil
}
