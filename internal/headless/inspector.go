package headless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/headlessctl/headlessctl/internal/console"
)

// Inspector defaults.
const (
	DefaultSettleDelay     = time.Second
	DefaultConfirmAttempts = 3
)

// Focus errors.
var (
	ErrWorldNotFound     = errors.New("no world with that index")
	ErrFocusNotConfirmed = errors.New("focus not confirmed")
)

// Executor runs one console command. *console.Session satisfies it.
type Executor interface {
	Execute(ctx context.Context, req console.CommandRequest) (console.CommandResponse, error)
}

// WorldDetail merges a world's listing entry, its status block and its users.
type WorldDetail struct {
	WorldSummary
	SessionID      string        `json:"sessionId"`
	Uptime         string        `json:"uptime"`
	Hidden         bool          `json:"hidden"`
	MobileFriendly bool          `json:"mobileFriendly"`
	Description    string        `json:"description"`
	Tags           []string      `json:"tags"`
	UserList       []UserSession `json:"users_list"`
	// Confirmed is false when the status never named the focused world.
	Confirmed bool `json:"confirmed"`
}

// InspectorConfig tunes the focus cycle.
type InspectorConfig struct {
	// SettleDelay is how long the console needs after "focus" before status
	// reflects the new world. Zero skips the wait.
	SettleDelay time.Duration
	// ConfirmAttempts bounds how many times status is read while it still
	// names another world.
	ConfirmAttempts int
	// CommandTimeout overrides the session default for each command.
	CommandTimeout time.Duration
}

func (c InspectorConfig) withDefaults() InspectorConfig {
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ConfirmAttempts < 1 {
		c.ConfirmAttempts = DefaultConfirmAttempts
	}
	return c
}

// Inspector runs the multi-command sequences that depend on the console's
// single focused world. Focus cycles never interleave, and raw commands sent
// through Exec wait for a running cycle to finish.
type Inspector struct {
	exec   Executor
	cfg    InspectorConfig
	logger *slog.Logger

	mu sync.Mutex
}

// NewInspector creates an inspector over exec. A nil logger uses slog.Default.
func NewInspector(exec Executor, cfg InspectorConfig, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		exec:   exec,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

func (in *Inspector) run(ctx context.Context, command string) ([]string, error) {
	resp, err := in.exec.Execute(ctx, console.CommandRequest{Text: command, Timeout: in.cfg.CommandTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to run %q: %w", command, err)
	}
	return resp.Strings(), nil
}

// Worlds lists the running worlds.
func (in *Inspector) Worlds(ctx context.Context) ([]WorldSummary, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lines, err := in.run(ctx, CmdWorlds)
	if err != nil {
		return nil, err
	}
	return ParseWorlds(lines), nil
}

// Bans lists banned users.
func (in *Inspector) Bans(ctx context.Context) ([]BanRecord, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lines, err := in.run(ctx, CmdBans)
	if err != nil {
		return nil, err
	}
	return ParseBans(lines), nil
}

// Status reads the status of the currently focused world.
func (in *Inspector) Status(ctx context.Context) (WorldStatus, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lines, err := in.run(ctx, CmdStatus)
	if err != nil {
		return WorldStatus{}, err
	}
	return ParseStatus(lines), nil
}

// Users lists the users of the currently focused world.
func (in *Inspector) Users(ctx context.Context) ([]UserSession, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lines, err := in.run(ctx, CmdUsers)
	if err != nil {
		return nil, err
	}
	return ParseUsers(lines), nil
}

// Focus switches the console to the world at index.
func (in *Inspector) Focus(ctx context.Context, index int) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	_, err := in.run(ctx, fmt.Sprintf("%s %d", CmdFocus, index))
	return err
}

// Exec runs a raw console command. It shares the inspector's lock so a
// command that moves the focus cannot land inside a focus cycle.
func (in *Inspector) Exec(ctx context.Context, req console.CommandRequest) (console.CommandResponse, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.exec.Execute(ctx, req)
}

// FocusedUsers focuses the world at index, waits until the status confirms
// it and lists its users.
func (in *Inspector) FocusedUsers(ctx context.Context, index int) ([]UserSession, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lines, err := in.run(ctx, CmdWorlds)
	if err != nil {
		return nil, err
	}
	var target *WorldSummary
	for _, w := range ParseWorlds(lines) {
		if w.Index == index {
			target = &w
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %d", ErrWorldNotFound, index)
	}

	st, err := in.focusWorld(ctx, *target)
	if err != nil {
		return nil, err
	}
	if !focused(st, *target) {
		return nil, fmt.Errorf("%w: %s (status names %q)", ErrFocusNotConfirmed, target.Name, st.Name)
	}

	lines, err = in.run(ctx, CmdUsers)
	if err != nil {
		return nil, err
	}
	return ParseUsers(lines), nil
}

// Inspect focuses w and collects its status and users.
func (in *Inspector) Inspect(ctx context.Context, w WorldSummary) (WorldDetail, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.inspect(ctx, w)
}

// InspectAll lists the worlds and inspects each one in turn. The first
// command error aborts the whole aggregation.
func (in *Inspector) InspectAll(ctx context.Context) ([]WorldDetail, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lines, err := in.run(ctx, CmdWorlds)
	if err != nil {
		return nil, err
	}
	worlds := ParseWorlds(lines)

	details := make([]WorldDetail, 0, len(worlds))
	for _, w := range worlds {
		d, err := in.inspect(ctx, w)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

// focusWorld sends "focus" and reads the status after the settle delay,
// re-sending the focus while the status names another world. The caller
// holds in.mu.
func (in *Inspector) focusWorld(ctx context.Context, w WorldSummary) (WorldStatus, error) {
	var st WorldStatus
	for attempt := 1; ; attempt++ {
		if _, err := in.run(ctx, fmt.Sprintf("%s %d", CmdFocus, w.Index)); err != nil {
			return WorldStatus{}, err
		}
		if err := sleep(ctx, in.cfg.SettleDelay); err != nil {
			return WorldStatus{}, err
		}
		lines, err := in.run(ctx, CmdStatus)
		if err != nil {
			return WorldStatus{}, err
		}
		st = ParseStatus(lines)
		if focused(st, w) || attempt >= in.cfg.ConfirmAttempts {
			return st, nil
		}
		in.logger.Debug("focus not confirmed yet",
			"world", w.Name,
			"status_name", st.Name,
			"attempt", attempt)
	}
}

func (in *Inspector) inspect(ctx context.Context, w WorldSummary) (WorldDetail, error) {
	st, err := in.focusWorld(ctx, w)
	if err != nil {
		return WorldDetail{}, fmt.Errorf("failed to inspect world %d: %w", w.Index, err)
	}

	// Users are focus scoped; without confirmation they may belong to
	// another world.
	if !focused(st, w) {
		in.logger.Warn("focus not confirmed", "world", w.Name, "status_name", st.Name)
		return merge(w, st, []UserSession{}), nil
	}

	lines, err := in.run(ctx, CmdUsers)
	if err != nil {
		return WorldDetail{}, fmt.Errorf("failed to inspect world %d: %w", w.Index, err)
	}
	return merge(w, st, ParseUsers(lines)), nil
}

func focused(st WorldStatus, w WorldSummary) bool {
	return st.Name == "" || strings.TrimSpace(st.Name) == strings.TrimSpace(w.Name)
}

func merge(w WorldSummary, st WorldStatus, users []UserSession) WorldDetail {
	d := WorldDetail{
		WorldSummary:   w,
		SessionID:      st.SessionID,
		Uptime:         st.Uptime,
		Hidden:         st.Hidden,
		MobileFriendly: st.MobileFriendly,
		Description:    st.Description,
		Tags:           st.Tags,
		UserList:       users,
		Confirmed:      focused(st, w),
	}
	if !d.Confirmed {
		return d
	}
	if st.Has("Current Users") {
		d.Users = st.CurrentUsers
	}
	if st.Has("Present Users") {
		d.Present = st.PresentUsers
	}
	if st.Has("Max Users") {
		d.MaxUsers = st.MaxUsers
	}
	if st.Has("Access Level") {
		d.AccessLevel = st.AccessLevel
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
