package headless

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsole answers commands from a script and tracks the focused world.
type fakeConsole struct {
	mu       sync.Mutex
	focus    string
	worlds   []string
	status   map[string][]string
	users    map[string][]string
	bans     []string
	failOn   string
	lagging  int
	commands []string
	inFlight int
	overlap  bool
	// moveTo, when set, replaces the focus once right after the first focus
	// command, as if someone else switched worlds.
	moveTo string
}

func (f *fakeConsole) Execute(ctx context.Context, req console.CommandRequest) (console.CommandResponse, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.commands = append(f.commands, req.Text)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.failOn != "" && req.Text == f.failOn {
		return console.CommandResponse{}, &console.ChannelError{Op: "read", Err: errors.New("reset")}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	switch {
	case req.Text == CmdWorlds:
		out = f.worlds
	case strings.HasPrefix(req.Text, CmdFocus+" "):
		f.focus = strings.TrimPrefix(req.Text, CmdFocus+" ")
		if f.moveTo != "" {
			f.focus, f.moveTo = f.moveTo, ""
		}
	case req.Text == CmdStatus:
		if f.lagging > 0 {
			f.lagging--
			out = []string{"Name: Previous World"}
		} else {
			out = f.status[f.focus]
		}
	case req.Text == CmdUsers:
		out = f.users[f.focus]
	case req.Text == CmdBans:
		out = f.bans
	}

	lines := make([]console.ConsoleLine, 0, len(out)+2)
	lines = append(lines, console.ConsoleLine{Text: "World>" + req.Text})
	for _, l := range out {
		lines = append(lines, console.ConsoleLine{Text: l})
	}
	lines = append(lines, console.ConsoleLine{Text: "World>"})
	return console.CommandResponse{Command: req.Text, Lines: lines, Reason: console.ReasonQuiescence}, nil
}

func (f *fakeConsole) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		worlds: []string{
			"[0] Alpha Users: 1\tPresent: 1\tAccess Level: Anyone\tMax Users: 4",
			"[1] Beta Users: 2\tPresent: 0\tAccess Level: Contacts\tMax Users: 8",
		},
		status: map[string][]string{
			"0": {"Name: Alpha", "SessionID: S-A", "Current Users: 2", "Uptime: 0.00:45:00.0000000", "Tags: a,b"},
			"1": {"Name: Beta", "SessionID: S-B", "Hidden from listing: True"},
		},
		users: map[string][]string{
			"0": {"Alice ID: U-1 Present: true Ping: 10ms FPS: 60 Silenced: false"},
			"1": {"Bob ID: U-2 Present: false Ping: 99 FPS: 30.5 Silenced: true", "Carl ID: U-3"},
		},
		bans: []string{"[0]Username:Mallory UserID:U-13 MachineIds:"},
	}
}

func TestInspectorWorldsAndBans(t *testing.T) {
	f := newFakeConsole()
	in := NewInspector(f, InspectorConfig{}, nil)

	worlds, err := in.Worlds(context.Background())
	require.NoError(t, err)
	require.Len(t, worlds, 2)
	assert.Equal(t, "Beta", worlds[1].Name)

	bans, err := in.Bans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BanRecord{{Username: "Mallory", UserID: "U-13"}}, bans)
}

func TestInspectorInspectAll(t *testing.T) {
	f := newFakeConsole()
	in := NewInspector(f, InspectorConfig{}, nil)

	details, err := in.InspectAll(context.Background())
	require.NoError(t, err)
	require.Len(t, details, 2)

	alpha := details[0]
	assert.Equal(t, "Alpha", alpha.Name)
	assert.Equal(t, "S-A", alpha.SessionID)
	assert.Equal(t, 2, alpha.Users, "status counts override the listing")
	assert.Equal(t, 4, alpha.MaxUsers)
	assert.Equal(t, "45 minutes", alpha.Uptime)
	assert.Equal(t, []string{"a", "b"}, alpha.Tags)
	assert.True(t, alpha.Confirmed)
	require.Len(t, alpha.UserList, 1)
	assert.Equal(t, "Alice", alpha.UserList[0].Username)

	beta := details[1]
	assert.True(t, beta.Hidden)
	assert.Len(t, beta.UserList, 2)

	assert.Equal(t, []string{
		"worlds",
		"focus 0", "status", "users",
		"focus 1", "status", "users",
	}, f.Commands())
}

func TestInspectorConfirmsFocus(t *testing.T) {
	f := newFakeConsole()
	f.lagging = 2
	in := NewInspector(f, InspectorConfig{SettleDelay: time.Millisecond}, nil)

	d, err := in.Inspect(context.Background(), WorldSummary{Index: 1, Name: "Beta"})
	require.NoError(t, err)
	assert.True(t, d.Confirmed)
	assert.Equal(t, "S-B", d.SessionID)
	assert.Equal(t, []string{
		"focus 1", "status",
		"focus 1", "status",
		"focus 1", "status",
		"users",
	}, f.Commands())
}

func TestInspectorGivesUpConfirming(t *testing.T) {
	f := newFakeConsole()
	f.lagging = 10
	in := NewInspector(f, InspectorConfig{ConfirmAttempts: 2}, nil)

	d, err := in.Inspect(context.Background(), WorldSummary{Index: 0, Name: "Alpha", Users: 1})
	require.NoError(t, err)
	assert.False(t, d.Confirmed)
	assert.Equal(t, 1, d.Users, "unconfirmed status does not override the listing")
	assert.Empty(t, d.UserList, "users are not read without a confirmed focus")
	assert.Equal(t, []string{"focus 0", "status", "focus 0", "status"}, f.Commands())
}

func TestInspectorCommandError(t *testing.T) {
	f := newFakeConsole()
	f.failOn = CmdUsers
	in := NewInspector(f, InspectorConfig{}, nil)

	_, err := in.InspectAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world 0")

	var ce *console.ChannelError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"worlds", "focus 0", "status", "users"}, f.Commands())
}

func TestInspectorSettleHonorsContext(t *testing.T) {
	f := newFakeConsole()
	in := NewInspector(f, InspectorConfig{SettleDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := in.Inspect(ctx, WorldSummary{Index: 0, Name: "Alpha"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInspectorCyclesDoNotInterleave(t *testing.T) {
	f := newFakeConsole()
	in := NewInspector(f, InspectorConfig{SettleDelay: time.Millisecond}, nil)

	var wg sync.WaitGroup
	for _, w := range []WorldSummary{{Index: 0, Name: "Alpha"}, {Index: 1, Name: "Beta"}} {
		wg.Add(1)
		go func(w WorldSummary) {
			defer wg.Done()
			d, err := in.Inspect(context.Background(), w)
			assert.NoError(t, err)
			assert.True(t, d.Confirmed)
		}(w)
	}
	wg.Wait()

	cmds := f.Commands()
	require.Len(t, cmds, 6)
	for i := 0; i < len(cmds); i += 3 {
		assert.True(t, strings.HasPrefix(cmds[i], "focus "))
		assert.Equal(t, []string{"status", "users"}, cmds[i+1:i+3])
	}
}

func TestInspectorStatusAndUsers(t *testing.T) {
	f := newFakeConsole()
	in := NewInspector(f, InspectorConfig{}, nil)

	require.NoError(t, in.Focus(context.Background(), 1))

	st, err := in.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Beta", st.Name)

	users, err := in.Users(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestInspectorRefocusesWhenFocusMoves(t *testing.T) {
	f := newFakeConsole()
	f.moveTo = "1"
	in := NewInspector(f, InspectorConfig{SettleDelay: time.Millisecond}, nil)

	d, err := in.Inspect(context.Background(), WorldSummary{Index: 0, Name: "Alpha"})
	require.NoError(t, err)
	assert.True(t, d.Confirmed)
	assert.Equal(t, "S-A", d.SessionID)
	require.Len(t, d.UserList, 1)
	assert.Equal(t, "Alice", d.UserList[0].Username)
	assert.Equal(t, []string{"focus 0", "status", "focus 0", "status", "users"}, f.Commands())
}

func TestInspectorExecWaitsForFocusCycle(t *testing.T) {
	f := newFakeConsole()
	f.users["1"] = []string{"BobInBeta ID: U-2"}
	in := NewInspector(f, InspectorConfig{SettleDelay: 100 * time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_, err := in.Exec(context.Background(), console.CommandRequest{Text: "focus 1"})
		done <- err
	}()

	details, err := in.InspectAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.Len(t, details, 2)
	alpha := details[0]
	assert.True(t, alpha.Confirmed)
	require.Len(t, alpha.UserList, 1)
	assert.Equal(t, "Alice", alpha.UserList[0].Username)

	cmds := f.Commands()
	assert.Equal(t, "focus 1", cmds[len(cmds)-1], "raw command runs after the cycle")
	assert.Equal(t, []string{
		"worlds",
		"focus 0", "status", "users",
		"focus 1", "status", "users",
	}, cmds[:len(cmds)-1])
}

func TestInspectorFocusedUsers(t *testing.T) {
	f := newFakeConsole()
	f.lagging = 1
	in := NewInspector(f, InspectorConfig{SettleDelay: time.Millisecond}, nil)

	users, err := in.FocusedUsers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].Username)
	assert.Equal(t, []string{
		"worlds",
		"focus 1", "status",
		"focus 1", "status",
		"users",
	}, f.Commands())
}

func TestInspectorFocusedUsersNotConfirmed(t *testing.T) {
	f := newFakeConsole()
	f.lagging = 10
	in := NewInspector(f, InspectorConfig{ConfirmAttempts: 2}, nil)

	_, err := in.FocusedUsers(context.Background(), 0)
	assert.ErrorIs(t, err, ErrFocusNotConfirmed)
	assert.NotContains(t, f.Commands(), CmdUsers)
}

func TestInspectorFocusedUsersUnknownWorld(t *testing.T) {
	f := newFakeConsole()
	in := NewInspector(f, InspectorConfig{}, nil)

	_, err := in.FocusedUsers(context.Background(), 7)
	assert.ErrorIs(t, err, ErrWorldNotFound)
	assert.Equal(t, []string{"worlds"}, f.Commands())
}
