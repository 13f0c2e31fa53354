package console

import (
	"strings"
	"time"
)

// Source identifies which channel produced a ConsoleLine.
type Source string

const (
	SourceCommand Source = "command"
	SourceMonitor Source = "monitor"
)

// RawChunk is the payload of a single read from a console channel.
type RawChunk struct {
	Data []byte
	At   time.Time
}

// ConsoleLine is one sanitized, non-empty line of console output.
type ConsoleLine struct {
	Text   string    `json:"text"`
	Source Source    `json:"source"`
	At     time.Time `json:"at"`
}

// CommandRequest is a command to execute against the console.
type CommandRequest struct {
	Text string
	// Timeout is the hard budget for the reply. Zero uses the session default.
	Timeout time.Duration
}

// CompletionReason records why a command's read loop ended.
type CompletionReason string

const (
	ReasonQuiescence CompletionReason = "quiescence"
	ReasonTimeout    CompletionReason = "timeout"
)

// CommandResponse is the sanitized reply to a CommandRequest.
type CommandResponse struct {
	Command string           `json:"command"`
	Lines   []ConsoleLine    `json:"lines"`
	Reason  CompletionReason `json:"reason"`
	Elapsed time.Duration    `json:"elapsed"`
}

// Strings returns the text of every line in order.
func (r CommandResponse) Strings() []string {
	out := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = l.Text
	}
	return out
}

// Text joins the reply lines with newlines.
func (r CommandResponse) Text() string {
	return strings.Join(r.Strings(), "\n")
}
