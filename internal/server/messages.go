package server

// Client -> server message types
const (
	MsgCommand    = "command"
	MsgGetStatus  = "get_status"
	MsgGetWorlds  = "get_worlds"
	MsgGetBans    = "get_bans"
	MsgGetHistory = "get_history"
)

// Server -> client message types
const (
	MsgContainerOutput = "container_output"
	MsgCommandResponse = "command_response"
	MsgStatusUpdate    = "status_update"
	MsgWorldsUpdate    = "worlds_update"
	MsgBansUpdate      = "bans_update"
	MsgHistory         = "history"
	MsgError           = "error"
)

// ClientMessage is a JSON request sent over the websocket
type ClientMessage struct {
	Type string `json:"type"`
	// ID is echoed back in the reply so clients can match responses.
	ID      string `json:"id,omitempty"`
	Command string `json:"command,omitempty"`
	Detail  bool   `json:"detail,omitempty"` // get_worlds: run the full inspection
	N       int    `json:"n,omitempty"`      // get_history: number of lines
}

// ServerMessage is a JSON message sent to a websocket client
type ServerMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Container string `json:"container"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}
