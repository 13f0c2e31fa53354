package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Monitor defaults.
const (
	DefaultMaxPartial  = 8192
	DefaultKeepPartial = 4096
)

// MonitorConfig tunes the background console reader.
type MonitorConfig struct {
	PollInterval time.Duration
	// Wake sends a bare terminator on a separate channel after attaching so
	// the console prints a fresh prompt.
	Wake       bool
	Terminator string
	// IncludeHistory replays the console output produced before the attach.
	IncludeHistory bool
	// MaxPartial bounds an unterminated line. Past it only the trailing
	// KeepPartial bytes are kept.
	MaxPartial  int
	KeepPartial int
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Terminator == "" {
		c.Terminator = DefaultTerminator
	}
	if c.MaxPartial <= 0 {
		c.MaxPartial = DefaultMaxPartial
	}
	if c.KeepPartial <= 0 || c.KeepPartial > c.MaxPartial {
		c.KeepPartial = min(DefaultKeepPartial, c.MaxPartial)
	}
	return c
}

// Monitor continuously reads unsolicited console output over a long-lived
// channel, records every clean line in a History and publishes it to a Hub.
type Monitor struct {
	attacher Attacher
	history  *History
	hub      *Hub
	cfg      MonitorConfig
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	err     error
}

// NewMonitor creates a stopped monitor. A nil history or hub gets a fresh
// default one; a nil logger uses slog.Default.
func NewMonitor(attacher Attacher, history *History, hub *Hub, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Monitor{
		attacher: attacher,
		history:  history,
		hub:      hub,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		done:     done,
	}
}

// History returns the history the monitor appends to.
func (m *Monitor) History() *History {
	return m.history
}

// Hub returns the hub the monitor publishes to.
func (m *Monitor) Hub() *Hub {
	return m.hub
}

// Running reports whether the read loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run reads the console until ctx is cancelled, Stop is called or the channel
// fails. A clean stop returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	stop, err := m.begin()
	if err != nil {
		return err
	}
	err = m.run(ctx, stop)
	m.end(err)
	return err
}

// Start runs the read loop in a new goroutine. Done is closed and Err is set
// when it returns.
func (m *Monitor) Start(ctx context.Context) error {
	stop, err := m.begin()
	if err != nil {
		return err
	}
	go func() {
		m.end(m.run(ctx, stop))
	}()
	return nil
}

// Stop asks the read loop to exit. It returns immediately; the loop notices
// within one poll interval. Wait on Done to know it has finished.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// Done is closed when the last started loop has returned. It is already
// closed for a monitor that was never started.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Err returns the error that ended the last loop.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Monitor) begin() (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrMonitorRunning
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.err = nil
	return m.stop, nil
}

func (m *Monitor) end(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.err = err
	close(m.done)
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}) error {
	ch, err := m.attacher.Attach(ctx, AttachOptions{
		Stdout: true,
		Stderr: true,
		Stream: true,
		Logs:   m.cfg.IncludeHistory,
	})
	if err != nil {
		err = classifyAttach(err)
		m.logger.Error("console monitor attach failed", "error", err)
		return err
	}
	defer ch.Close()

	if m.cfg.Wake {
		if err := m.wake(ctx); err != nil {
			m.logger.Warn("console monitor wake failed", "error", err)
		}
	}

	p := startPoller(ch)
	defer p.stop()

	m.logger.Debug("console monitor started")

	var partial []byte
	for !stopped(ctx, stop) {
		chunk, err := p.poll(ctx, m.cfg.PollInterval)
		if err != nil {
			if stopped(ctx, stop) {
				break
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			cerr := &ChannelError{Op: "read", Err: err}
			m.logger.Error("console monitor stopped", "error", cerr)
			return cerr
		}
		if len(chunk.Data) == 0 {
			continue
		}
		partial = m.consume(append(partial, chunk.Data...), chunk.At)
	}

	m.logger.Debug("console monitor stopped", "pending_bytes", len(partial))
	return nil
}

// consume emits every complete line in buf and returns the unterminated rest.
func (m *Monitor) consume(buf []byte, at time.Time) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		m.emit(buf[:idx], at)
		buf = buf[idx+1:]
	}

	if len(buf) > m.cfg.MaxPartial {
		m.logger.Debug("console monitor truncated unterminated output", "bytes", len(buf))
		buf = append([]byte(nil), buf[len(buf)-m.cfg.KeepPartial:]...)
	}
	return buf
}

func (m *Monitor) emit(raw []byte, at time.Time) {
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	for _, t := range Sanitize(text) {
		line := ConsoleLine{Text: t, Source: SourceMonitor, At: at}
		m.history.Append(line)
		m.hub.Publish(line)
	}
}

func (m *Monitor) wake(ctx context.Context) error {
	ch, err := m.attacher.Attach(ctx, AttachOptions{Stdin: true, Stream: true})
	if err != nil {
		return classifyAttach(err)
	}
	defer ch.Close()

	if _, err := io.WriteString(ch, m.cfg.Terminator); err != nil {
		return &ChannelError{Op: "write", Err: err}
	}
	return nil
}
