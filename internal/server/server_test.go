package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headlessctl/headlessctl/internal/config"
	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/headless"
	"github.com/headlessctl/headlessctl/internal/network"
	"github.com/headlessctl/headlessctl/internal/runtime"
	"github.com/headlessctl/headlessctl/internal/session"
)

func setupTestServer(t *testing.T, opts Options) (*httptest.Server, *Server, *scriptedManager, *session.Registry) {
	t.Helper()
	m := &scriptedManager{replies: defaultReplies, running: true}
	reg := newTestRegistry(m)
	srv := New(reg, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.closeClients()
		ts.Close()
	})
	return ts, srv, m, reg
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1.0, body["containers"])
}

func TestListContainers(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var infos []ContainerInfo
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/containers", &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "headless", infos[0].Name)
	require.NotNil(t, infos[0].Status)
	assert.Equal(t, "running", infos[0].Status.Status)
}

func TestStatus(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var report StatusReport
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/containers/headless/status", &report))
	assert.True(t, report.Container.Running)
	require.NotNil(t, report.World)
	assert.Equal(t, "Lobby", report.World.Name)
	assert.Equal(t, []string{"chill", "music"}, report.World.Tags)
}

func TestUnknownContainer(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/containers/nope/status", &body))
	assert.Contains(t, body["error"], "console not found")
}

func TestLifecycle(t *testing.T) {
	ts, _, m, _ := setupTestServer(t, Options{})

	var st runtime.ContainerStatus
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/containers/headless/stop", "", &st))
	assert.False(t, st.Running)

	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/containers/headless/start", "", &st))
	assert.True(t, st.Running)

	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/containers/headless/kill?signal=SIGTERM", "", &st))
	assert.Equal(t, []string{"stop", "start", "kill:SIGTERM"}, m.Actions())

	assert.Equal(t, http.StatusNotFound, postJSON(t, ts.URL+"/api/containers/headless/explode", "", nil))
}

func TestExec(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var resp console.CommandResponse
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/containers/headless/exec", `{"command":"save"}`, &resp))
	assert.Equal(t, "save", resp.Command)
	assert.Equal(t, console.ReasonQuiescence, resp.Reason)
	assert.Equal(t, []string{"World>save", "World saved", "World>"}, resp.Strings())

	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/containers/headless/exec", `{"command":"  "}`, nil))
	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/containers/headless/exec", `{`, nil))
}

func TestWorlds(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var worlds []headless.WorldSummary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/containers/headless/worlds", &worlds))
	require.Len(t, worlds, 1)
	assert.Equal(t, "Lobby", worlds[0].Name)
	assert.Equal(t, 16, worlds[0].MaxUsers)
}

func TestBans(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	var bans []headless.BanRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/containers/headless/bans", &bans))
	assert.Equal(t, []headless.BanRecord{{Username: "griefer", UserID: "U-griefer"}}, bans)
}

func TestHistory(t *testing.T) {
	ts, _, _, reg := setupTestServer(t, Options{})
	c, err := reg.Get("headless")
	require.NoError(t, err)
	c.History.Append(console.ConsoleLine{Text: "a"}, console.ConsoleLine{Text: "b"}, console.ConsoleLine{Text: "c"})

	var body struct {
		Total uint64                `json:"total"`
		Lines []console.ConsoleLine `json:"lines"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/containers/headless/history?n=2", &body))
	assert.Equal(t, uint64(3), body.Total)
	require.Len(t, body.Lines, 2)
	assert.Equal(t, "b", body.Lines[0].Text)
}

func TestHeadlessConfigEndpoints(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/config", nil))

	path := filepath.Join(t.TempDir(), "Config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tickRate": 60, /* c */}`), 0644))
	ts, _, _, _ = setupTestServer(t, Options{HeadlessConfig: path})

	var doc map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/config", &doc))
	assert.Equal(t, 60.0, doc["tickRate"])

	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/config", `not json`, nil))
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/config", `{"tickRate": 30}`, nil))

	h, err := config.NewHeadlessConfig(path)
	require.NoError(t, err)
	doc, err = h.Read()
	require.NoError(t, err)
	assert.Equal(t, 30.0, doc["tickRate"])
}

func wsURL(ts *httptest.Server, container string) string {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if container != "" {
		url += "?container=" + container
	}
	return url
}

func dial(t *testing.T, url, origin string) *websocket.Conn {
	t.Helper()
	headers := http.Header{}
	headers.Set("Origin", origin)
	conn, _, err := websocket.DefaultDialer.Dial(url, headers)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var raw json.RawMessage
		require.NoError(t, conn.ReadJSON(&raw))
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Type == typ {
			msg.Data = raw
			return msg
		}
	}
}

func decodeData(t *testing.T, msg ServerMessage, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Data.(json.RawMessage), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestWebSocketHistoryAndOutput(t *testing.T) {
	ts, srv, _, reg := setupTestServer(t, Options{})
	c, err := reg.Get("headless")
	require.NoError(t, err)
	c.History.Append(console.ConsoleLine{Text: "earlier", Source: console.SourceMonitor})

	conn := dial(t, wsURL(ts, ""), ts.URL)

	msg := readUntil(t, conn, MsgHistory)
	assert.Equal(t, "headless", msg.Container)
	var lines []console.ConsoleLine
	decodeData(t, msg, &lines)
	require.Len(t, lines, 1)
	assert.Equal(t, "earlier", lines[0].Text)

	require.Eventually(t, func() bool { return c.Hub.Len() == 1 }, time.Second, time.Millisecond)
	c.Hub.Publish(console.ConsoleLine{Text: "User joined", Source: console.SourceMonitor})

	msg = readUntil(t, conn, MsgContainerOutput)
	var line console.ConsoleLine
	decodeData(t, msg, &line)
	assert.Equal(t, "User joined", line.Text)
	assert.Equal(t, 1, srv.Clients())
}

func TestWebSocketRequests(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})
	conn := dial(t, wsURL(ts, "headless"), ts.URL)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgCommand, ID: "1", Command: "save"}))
	msg := readUntil(t, conn, MsgCommandResponse)
	assert.Equal(t, "1", msg.ID)
	var resp console.CommandResponse
	decodeData(t, msg, &resp)
	assert.Contains(t, resp.Strings(), "World saved")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgGetWorlds, ID: "2"}))
	msg = readUntil(t, conn, MsgWorldsUpdate)
	var worlds []headless.WorldSummary
	decodeData(t, msg, &worlds)
	require.Len(t, worlds, 1)
	assert.Equal(t, "Lobby", worlds[0].Name)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgGetBans, ID: "3"}))
	msg = readUntil(t, conn, MsgBansUpdate)
	var bans []headless.BanRecord
	decodeData(t, msg, &bans)
	assert.Len(t, bans, 1)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgGetStatus, ID: "4"}))
	msg = readUntil(t, conn, MsgStatusUpdate)
	var report StatusReport
	decodeData(t, msg, &report)
	require.NotNil(t, report.World)
	assert.Equal(t, 2, report.World.CurrentUsers)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "dance", ID: "5"}))
	msg = readUntil(t, conn, MsgError)
	assert.Equal(t, "5", msg.ID)
	assert.Contains(t, msg.Error, "unknown message type")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgCommand, ID: "6"}))
	msg = readUntil(t, conn, MsgError)
	assert.Equal(t, "6", msg.ID)
}

func TestWebSocketWorldDetail(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})
	conn := dial(t, wsURL(ts, "headless"), ts.URL)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgGetWorlds, Detail: true}))
	msg := readUntil(t, conn, MsgWorldsUpdate)
	var details []headless.WorldDetail
	decodeData(t, msg, &details)
	require.Len(t, details, 1)
	assert.Equal(t, "S-1", details[0].SessionID)
	require.Len(t, details[0].UserList, 1)
	assert.Equal(t, "alice", details[0].UserList[0].Username)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{Origins: network.Parse([]string{"local"})})

	headers := http.Header{}
	headers.Set("Origin", "https://attacker.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "headless"), headers)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketUnknownContainer(t *testing.T) {
	ts, _, _, _ := setupTestServer(t, Options{})

	headers := http.Header{}
	headers.Set("Origin", ts.URL)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "nope"), headers)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	ts, srv, _, reg := setupTestServer(t, Options{})
	conn := dial(t, wsURL(ts, "headless"), ts.URL)
	readUntil(t, conn, MsgHistory)

	reg.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	require.Eventually(t, func() bool { return srv.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServeStopsOnCancel(t *testing.T) {
	m := &scriptedManager{replies: defaultReplies}
	srv := New(newTestRegistry(m), Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"console", session.ErrConsoleNotFound, http.StatusNotFound},
		{"container", &console.NotFoundError{Container: "x"}, http.StatusNotFound},
		{"runtime", runtime.ErrRuntimeUnavailable, http.StatusServiceUnavailable},
		{"config", &config.ConfigurationError{Key: "k"}, http.StatusServiceUnavailable},
		{"not running", runtime.ErrNotRunning, http.StatusConflict},
		{"channel", &console.ChannelError{Op: "read"}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
