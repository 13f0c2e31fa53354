package server

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/runtime"
	"github.com/headlessctl/headlessctl/internal/session"
)

// scriptedChannel answers every written command with a canned reply.
type scriptedChannel struct {
	r       *io.PipeReader
	w       *io.PipeWriter
	replies map[string]string
	once    sync.Once
}

func (c *scriptedChannel) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *scriptedChannel) Write(p []byte) (int, error) {
	cmd := strings.TrimRight(string(p), "\r\n")
	reply, ok := c.replies[cmd]
	if !ok {
		reply = "Unknown command\r\n"
	}
	go func() {
		_, _ = c.w.Write([]byte("World>" + cmd + "\r\n" + reply + "World>"))
	}()
	return len(p), nil
}

func (c *scriptedChannel) Close() error {
	c.once.Do(func() {
		c.r.Close()
		c.w.Close()
	})
	return nil
}

// scriptedManager is a runtime whose console replies from a script and whose
// lifecycle calls are recorded.
type scriptedManager struct {
	replies map[string]string

	mu      sync.Mutex
	running bool
	actions []string
}

func (m *scriptedManager) Attach(ctx context.Context, name string, opts console.AttachOptions) (console.Channel, error) {
	if name != "headless" {
		return nil, &console.NotFoundError{Container: name}
	}
	r, w := io.Pipe()
	return &scriptedChannel{r: r, w: w, replies: m.replies}, nil
}

func (m *scriptedManager) record(action string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	m.running = running
}

func (m *scriptedManager) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

func (m *scriptedManager) Status(ctx context.Context, name string) (runtime.ContainerStatus, error) {
	if name != "headless" {
		return runtime.ContainerStatus{}, &console.NotFoundError{Container: name}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := runtime.ContainerStatus{Name: name, ID: "abc123", Status: "exited", Running: m.running}
	if m.running {
		st.Status = "running"
		st.StartedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return st, nil
}

func (m *scriptedManager) Start(ctx context.Context, name string) error {
	m.record("start", true)
	return nil
}

func (m *scriptedManager) Stop(ctx context.Context, name string, timeout time.Duration) error {
	m.record("stop", false)
	return nil
}

func (m *scriptedManager) Restart(ctx context.Context, name string, timeout time.Duration) error {
	m.record("restart", true)
	return nil
}

func (m *scriptedManager) Kill(ctx context.Context, name string, signal string) error {
	m.record("kill:"+signal, false)
	return nil
}

func (m *scriptedManager) Wait(ctx context.Context, name string, timeout time.Duration) (int64, error) {
	return 0, nil
}

func (m *scriptedManager) Close() error {
	return nil
}

var defaultReplies = map[string]string{
	"worlds": "[0] Lobby Users: 2\tPresent: 1\tAccess Level: Anyone\tMax Users: 16\r\n",
	"status": "Name: Lobby\r\nSessionID: S-1\r\nCurrent Users: 2\r\nPresent Users: 1\r\nMax Users: 16\r\n" +
		"Uptime: 01:02:03\r\nAccess Level: Anyone\r\nHidden from listing: False\r\nMobile Friendly: True\r\n" +
		"Description: Welcome\r\nTags: chill, music\r\n",
	"users":    "alice\tID: U-alice\tRole: Admin\tPresent: True\tPing: 20\tFPS: 60\tSilenced: False\r\n",
	"listbans": "[0]Username: griefer UserID: U-griefer MachineIds: m1\r\n",
	"focus 0":  "World focused\r\n",
	"save":     "\x1b[32mWorld saved\x1b[0m\r\n",
}

func newTestRegistry(m runtime.Manager) *session.Registry {
	return session.NewRegistry(m, []string{"headless"}, session.Options{
		Session: console.SessionConfig{
			PollInterval:   20 * time.Millisecond,
			IdlePolls:      3,
			DefaultTimeout: 2 * time.Second,
		},
		HistorySize: 10,
	})
}
