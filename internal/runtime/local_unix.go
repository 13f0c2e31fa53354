//go:build unix

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/headlessctl/headlessctl/internal/console"
)

const (
	// scrollbackSize bounds the output replayed to channels attached with Logs.
	scrollbackSize = 64 << 10
	// channelBuffer is the number of chunks queued per attached channel.
	channelBuffer = 256
)

// LocalManager runs headless servers as child processes under a PTY. Every
// configured container name maps to at most one process. Output is fanned out
// to all attached channels; input from any channel goes to the PTY.
type LocalManager struct {
	command []string
	dir     string
	logger  *slog.Logger

	mu    sync.Mutex
	procs map[string]*localProcess
}

// NewLocalManager creates a manager for opts.Containers. Processes are not
// started until Start is called.
func NewLocalManager(opts Options) (*LocalManager, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("local runtime requires a command")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &LocalManager{
		command: opts.Command,
		dir:     opts.Dir,
		logger:  logger,
		procs:   make(map[string]*localProcess),
	}
	for _, name := range opts.Containers {
		m.procs[name] = nil
	}
	return m, nil
}

func (m *LocalManager) lookup(name string) (*localProcess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.procs[name]
	if !ok {
		return nil, &console.NotFoundError{Container: name}
	}
	return p, nil
}

func (m *LocalManager) Attach(ctx context.Context, name string, opts console.AttachOptions) (console.Channel, error) {
	p, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if p == nil || p.exited() {
		return nil, fmt.Errorf("failed to attach to %s: %w", name, ErrNotRunning)
	}
	return p.attach(opts), nil
}

func (m *LocalManager) Status(ctx context.Context, name string) (ContainerStatus, error) {
	p, err := m.lookup(name)
	if err != nil {
		return ContainerStatus{}, err
	}

	st := ContainerStatus{Name: name, Status: "created"}
	if p == nil {
		return st, nil
	}
	st.ID = strconv.Itoa(p.cmd.Process.Pid)
	st.StartedAt = p.startedAt
	if p.exited() {
		st.Status = "exited"
	} else {
		st.Status = "running"
		st.Running = true
	}
	return st, nil
}

func (m *LocalManager) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.procs[name]
	if !ok {
		return &console.NotFoundError{Container: name}
	}
	if p != nil && !p.exited() {
		return nil
	}

	p, err := startProcess(name, m.command, m.dir, m.logger)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	m.procs[name] = p
	return nil
}

func (m *LocalManager) Stop(ctx context.Context, name string, timeout time.Duration) error {
	p, err := m.lookup(name)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return p.stop(ctx, stopTimeout(timeout))
}

func (m *LocalManager) Restart(ctx context.Context, name string, timeout time.Duration) error {
	if err := m.Stop(ctx, name, timeout); err != nil {
		return err
	}
	return m.Start(ctx, name)
}

func (m *LocalManager) Kill(ctx context.Context, name string, signal string) error {
	p, err := m.lookup(name)
	if err != nil {
		return err
	}
	if p == nil || p.exited() {
		return fmt.Errorf("failed to kill %s: %w", name, ErrNotRunning)
	}
	sig, err := parseSignal(signal)
	if err != nil {
		return err
	}
	return p.cmd.Process.Signal(sig)
}

func (m *LocalManager) Wait(ctx context.Context, name string, timeout time.Duration) (int64, error) {
	p, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}

	t := time.NewTimer(stopTimeout(timeout))
	defer t.Stop()
	select {
	case <-p.done:
		return int64(p.exitCode), nil
	case <-t.C:
		return 0, fmt.Errorf("failed to wait for %s: timed out", name)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close kills every running process.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	procs := make([]*localProcess, 0, len(m.procs))
	for _, p := range m.procs {
		if p != nil {
			procs = append(procs, p)
		}
	}
	m.mu.Unlock()

	for _, p := range procs {
		if !p.exited() {
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	}
	return nil
}

func parseSignal(s string) (syscall.Signal, error) {
	switch strings.TrimPrefix(strings.ToUpper(s), "SIG") {
	case "", "KILL", "9":
		return syscall.SIGKILL, nil
	case "TERM", "15":
		return syscall.SIGTERM, nil
	case "INT", "2":
		return syscall.SIGINT, nil
	case "HUP", "1":
		return syscall.SIGHUP, nil
	case "QUIT", "3":
		return syscall.SIGQUIT, nil
	}
	return 0, fmt.Errorf("unsupported signal %q", s)
}

// localProcess is one headless server running under a PTY with a single
// reader goroutine that broadcasts its output.
type localProcess struct {
	name      string
	cmd       *exec.Cmd
	pty       *os.File
	startedAt time.Time
	logger    *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	channels   map[*localChannel]struct{}
	scrollback []byte
	done       chan struct{}
	exitCode   int
}

func startProcess(name string, command []string, dir string, logger *slog.Logger) (*localProcess, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 200, Rows: 50})
	if err != nil {
		return nil, err
	}

	p := &localProcess{
		name:      name,
		cmd:       cmd,
		pty:       ptmx,
		startedAt: time.Now(),
		logger:    logger,
		channels:  make(map[*localChannel]struct{}),
		done:      make(chan struct{}),
	}
	go p.readLoop()

	logger.Info("started local headless process", "container", name, "pid", cmd.Process.Pid)
	return p, nil
}

func (p *localProcess) readLoop() {
	buf := make([]byte, console.ReadSize)
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			p.broadcast(buf[:n])
		}
		if err != nil {
			break
		}
	}

	code := 0
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			p.logger.Warn("local process wait failed", "container", p.name, "error", err)
		}
	}
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	_ = p.pty.Close()

	p.mu.Lock()
	p.exitCode = code
	for c := range p.channels {
		c.hangup()
	}
	p.channels = nil
	close(p.done)
	p.mu.Unlock()

	p.logger.Info("local headless process exited", "container", p.name, "code", code)
}

func (p *localProcess) broadcast(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scrollback = append(p.scrollback, data...)
	if over := len(p.scrollback) - scrollbackSize; over > 0 {
		p.scrollback = append([]byte(nil), p.scrollback[over:]...)
	}

	for c := range p.channels {
		c.deliver(append([]byte(nil), data...))
	}
}

func (p *localProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *localProcess) attach(opts console.AttachOptions) *localChannel {
	c := &localChannel{
		proc:   p,
		stdin:  opts.Stdin,
		data:   make(chan []byte, channelBuffer),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.Logs {
		c.pending = append([]byte(nil), p.scrollback...)
	}
	if p.channels == nil {
		c.hangup()
		return c
	}
	if opts.Stdout || opts.Stderr {
		p.channels[c] = struct{}{}
	}
	return c
}

func (p *localProcess) detach(c *localChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, c)
}

func (p *localProcess) write(b []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.pty.Write(b)
}

func (p *localProcess) stop(ctx context.Context, timeout time.Duration) error {
	if p.exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop %s: %w", p.name, err)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	p.logger.Warn("local process ignored SIGTERM, killing", "container", p.name)
	_ = p.cmd.Process.Kill()
	<-p.done
	return nil
}

// localChannel is one attachment to a localProcess.
type localChannel struct {
	proc    *localProcess
	stdin   bool
	data    chan []byte
	eof     chan struct{}
	closed  chan struct{}
	eofOnce sync.Once
	once    sync.Once
	dropped int

	pending []byte
}

// deliver queues a chunk without blocking; the process lock is held.
func (c *localChannel) deliver(b []byte) {
	select {
	case c.data <- b:
	default:
		c.dropped++
	}
}

func (c *localChannel) hangup() {
	c.eofOnce.Do(func() { close(c.eof) })
}

func (c *localChannel) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	select {
	case b := <-c.data:
		return c.take(p, b), nil
	case <-c.closed:
		return 0, io.ErrClosedPipe
	case <-c.eof:
		select {
		case b := <-c.data:
			return c.take(p, b), nil
		default:
			return 0, io.EOF
		}
	}
}

func (c *localChannel) take(p, b []byte) int {
	n := copy(p, b)
	if n < len(b) {
		c.pending = append(c.pending, b[n:]...)
	}
	return n
}

func (c *localChannel) Write(p []byte) (int, error) {
	if !c.stdin {
		return 0, errors.New("channel is not attached to stdin")
	}
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	return c.proc.write(p)
}

func (c *localChannel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.proc.detach(c)
	})
	return nil
}
