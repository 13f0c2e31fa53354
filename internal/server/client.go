package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 16
)

// handleWebSocket upgrades the request and streams one container's console.
// The container is chosen with ?container=, defaulting to the first one.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("container")
	if name == "" {
		if names := s.registry.List(); len(names) > 0 {
			name = names[0]
		}
	}
	c, err := s.registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s, conn, c)
	s.addClient(client)
	client.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	client.reply(ServerMessage{Type: MsgHistory, Data: c.History.Recent(0)})

	go client.ReadPump()
	go client.WritePump()
}

// Client is one websocket connection bound to a console. Monitor lines are
// forwarded as they arrive; requests are answered asynchronously.
type Client struct {
	id      string
	conn    *websocket.Conn
	server  *Server
	console *session.Console
	sub     *console.Subscription
	send    chan ServerMessage
	logger  *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newClient(s *Server, conn *websocket.Conn, c *session.Console) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Client{
		id:      id,
		conn:    conn,
		server:  s,
		console: c,
		sub:     c.Hub.Subscribe(s.opts.SubscriberBuffer),
		send:    make(chan ServerMessage, sendBuffer),
		logger:  s.logger.With("client", id, "container", c.Name),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Close disconnects the client. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.sub.Close()
		c.conn.Close()
		c.server.removeClient(c)
		if n := c.sub.Dropped(); n > 0 {
			c.logger.Warn("websocket client missed console lines", "dropped", n)
		}
		c.logger.Info("websocket client disconnected")
	})
}

// reply queues msg for the write pump unless the client is gone.
func (c *Client) reply(msg ServerMessage) {
	msg.Container = c.console.Name
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

// ReadPump reads requests from the websocket
func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ServerMessage{Type: MsgError, Error: "invalid message: " + err.Error()})
			continue
		}
		go c.handle(msg)
	}
}

// handle answers one request. Console access is serialized by the inspector,
// so concurrent requests queue up there.
func (c *Client) handle(msg ClientMessage) {
	ctx := c.ctx
	in := c.console.Inspector

	var (
		typ  string
		data any
		err  error
	)
	switch msg.Type {
	case MsgCommand:
		typ = MsgCommandResponse
		text := strings.TrimSpace(msg.Command)
		if text == "" {
			err = fmt.Errorf("command is required")
			break
		}
		c.logger.Debug("websocket command", "command", text)
		data, err = in.Exec(ctx, console.CommandRequest{Text: text})
	case MsgGetStatus:
		typ = MsgStatusUpdate
		data, err = c.server.statusReport(ctx, c.console)
	case MsgGetWorlds:
		typ = MsgWorldsUpdate
		if msg.Detail {
			data, err = in.InspectAll(ctx)
		} else {
			data, err = in.Worlds(ctx)
		}
	case MsgGetBans:
		typ = MsgBansUpdate
		data, err = in.Bans(ctx)
	case MsgGetHistory:
		typ = MsgHistory
		data = c.console.History.Recent(msg.N)
	default:
		c.reply(ServerMessage{Type: MsgError, ID: msg.ID, Error: "unknown message type: " + msg.Type})
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.reply(ServerMessage{Type: MsgError, ID: msg.ID, Error: fmt.Sprintf("%s failed: %v", msg.Type, err)})
		return
	}
	c.reply(ServerMessage{Type: typ, ID: msg.ID, Data: data})
}

// WritePump writes console output and replies to the websocket
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case line, ok := <-c.sub.C():
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.write(ServerMessage{Type: MsgContainerOutput, Container: c.console.Name, Data: line}); err != nil {
				return
			}

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) write(msg ServerMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
