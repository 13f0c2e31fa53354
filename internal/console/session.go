package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// Session defaults.
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultIdlePolls      = 3
	DefaultCommandTimeout = time.Second
	DefaultTerminator     = "\r\n"
)

// SessionConfig tunes the reply completion heuristic.
type SessionConfig struct {
	// Terminator is appended to every command: "\r\n" or "\r".
	Terminator     string
	PollInterval   time.Duration
	IdlePolls      int
	DefaultTimeout time.Duration
	// IncludeHistory replays earlier console output into each command
	// channel. Leave it off: replayed output lands in the reply.
	IncludeHistory bool
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Terminator == "" {
		c.Terminator = DefaultTerminator
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.IdlePolls <= 0 {
		c.IdlePolls = DefaultIdlePolls
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultCommandTimeout
	}
	return c
}

// Session executes commands against the console one at a time. Each command
// gets its own channel, opened before the write and closed after the reply, so
// output of one command cannot leak into the next.
type Session struct {
	attacher Attacher
	cfg      SessionConfig
	logger   *slog.Logger

	mu sync.Mutex
}

// NewSession creates a session over attacher. A nil logger uses slog.Default.
func NewSession(attacher Attacher, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		attacher: attacher,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Config returns the effective session configuration.
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// Run executes text with the default timeout.
func (s *Session) Run(ctx context.Context, text string) (CommandResponse, error) {
	return s.Execute(ctx, CommandRequest{Text: text})
}

// Execute sends req and captures its reply. Calls are serialized: a second
// caller waits until the first reply is complete and its channel is closed.
func (s *Session) Execute(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return CommandResponse{}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	ch, err := s.attacher.Attach(ctx, AttachOptions{
		Stdin:  true,
		Stdout: true,
		Stderr: true,
		Stream: true,
		Logs:   s.cfg.IncludeHistory,
	})
	if err != nil {
		return CommandResponse{}, classifyAttach(err)
	}
	defer ch.Close()

	detector := NewDetector(s.cfg.IdlePolls, timeout)
	if _, err := io.WriteString(ch, req.Text+s.cfg.Terminator); err != nil {
		return CommandResponse{}, &ChannelError{Op: "write", Err: err}
	}
	start := time.Now()
	detector.Sent(start)

	p := startPoller(ch)
	defer p.stop()

	var buf bytes.Buffer
	for detector.Phase() == PhaseAwaitingData {
		chunk, err := p.poll(ctx, s.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return CommandResponse{}, ctx.Err()
			}
			return CommandResponse{}, &ChannelError{Op: "read", Err: err}
		}
		buf.Write(chunk.Data)
		detector.Observe(len(chunk.Data), time.Now())
	}
	reason := detector.Finish()

	if !utf8.Valid(buf.Bytes()) {
		return CommandResponse{}, &ChannelError{Op: "decode", Err: fmt.Errorf("reply to %q is not valid UTF-8", req.Text)}
	}

	now := time.Now()
	text := Sanitize(buf.String())
	lines := make([]ConsoleLine, len(text))
	for i, t := range text {
		lines[i] = ConsoleLine{Text: t, Source: SourceCommand, At: now}
	}

	resp := CommandResponse{
		Command: req.Text,
		Lines:   lines,
		Reason:  reason,
		Elapsed: now.Sub(start),
	}
	s.logger.Debug("console command complete",
		"command", req.Text,
		"reason", reason,
		"lines", len(lines),
		"elapsed", resp.Elapsed)
	return resp, nil
}
