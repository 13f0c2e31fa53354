package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/headlessctl/headlessctl/internal/config"
	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/headless"
	"github.com/headlessctl/headlessctl/internal/runtime"
	"github.com/headlessctl/headlessctl/internal/session"
)

const maxBodySize = 1 << 20

// ContainerInfo is one entry of GET /api/containers.
type ContainerInfo struct {
	Name       string                   `json:"name"`
	Status     *runtime.ContainerStatus `json:"status,omitempty"`
	Monitoring bool                     `json:"monitoring"`
	Lines      uint64                   `json:"lines"`
	Error      string                   `json:"error,omitempty"`
}

// StatusReport combines container liveness with the focused world's status.
type StatusReport struct {
	Container runtime.ContainerStatus `json:"container"`
	World     *headless.WorldStatus   `json:"world,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// ExecRequest is the body of POST /api/containers/{name}/exec.
type ExecRequest struct {
	Command string `json:"command"`
	// Timeout is a Go duration string; empty uses the session default.
	Timeout string `json:"timeout,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var ce *console.ChannelError
	switch {
	case errors.Is(err, session.ErrConsoleNotFound), console.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, runtime.ErrRuntimeUnavailable), config.IsConfigurationError(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, runtime.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ce):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Console, bool) {
	c, err := s.registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return c, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"containers": len(s.registry.List()),
		"clients":    s.Clients(),
	})
}

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	names := s.registry.List()
	infos := make([]ContainerInfo, 0, len(names))
	for _, name := range names {
		c, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		info := ContainerInfo{
			Name:       name,
			Monitoring: c.Monitor.Running(),
			Lines:      c.History.Total(),
		}
		st, err := s.registry.Manager().Status(r.Context(), name)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Status = &st
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

// statusReport reads the container status and, when it is running, the
// focused world's status. A world status failure is reported inline.
func (s *Server) statusReport(ctx context.Context, c *session.Console) (StatusReport, error) {
	st, err := s.registry.Manager().Status(ctx, c.Name)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Container: st}
	if !st.Running {
		return report, nil
	}

	world, err := c.Inspector.Status(ctx)
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}
	report.World = &world
	return report, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	report, err := s.statusReport(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	m := s.registry.Manager()
	timeout := parseDuration(r.URL.Query().Get("timeout"))

	var err error
	switch action := r.PathValue("action"); action {
	case "start":
		err = m.Start(ctx, c.Name)
	case "stop":
		err = m.Stop(ctx, c.Name, timeout)
	case "restart":
		err = m.Restart(ctx, c.Name, timeout)
	case "kill":
		err = m.Kill(ctx, c.Name, r.URL.Query().Get("signal"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown action: " + action})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("container action", "container", c.Name, "action", r.PathValue("action"))
	st, err := m.Status(ctx, c.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req ExecRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "command is required"})
		return
	}

	resp, err := c.Inspector.Exec(r.Context(), console.CommandRequest{
		Text:    req.Command,
		Timeout: parseDuration(req.Timeout),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWorlds(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var (
		payload any
		err     error
	)
	if detail, _ := strconv.ParseBool(r.URL.Query().Get("detail")); detail {
		payload, err = c.Inspector.InspectAll(r.Context())
	} else {
		payload, err = c.Inspector.Worlds(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	users, err := c.Inspector.Users(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleBans(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	bans, err := c.Inspector.Bans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	writeJSON(w, http.StatusOK, map[string]any{
		"container": c.Name,
		"total":     c.History.Total(),
		"lines":     c.History.Recent(n),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	h, err := config.NewHeadlessConfig(s.opts.HeadlessConfig)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := h.Read()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	h, err := config.NewHeadlessConfig(s.opts.HeadlessConfig)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	if err := h.Write(data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("headless config updated", "path", h.Path())
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// parseDuration returns zero for empty or malformed input so callers fall
// back to their defaults.
func parseDuration(v string) time.Duration {
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
