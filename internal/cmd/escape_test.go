package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isDetached(e *escapeWriter) bool {
	select {
	case <-e.Detached():
		return true
	default:
		return false
	}
}

func TestEscapeWriter(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		want     string
		help     bool
		detached bool
	}{
		{name: "plain input", input: []string{"worlds\r"}, want: "worlds\r"},
		{name: "detach at start", input: []string{"~."}, want: "", detached: true},
		{name: "detach after newline", input: []string{"status\r~."}, want: "status\r", detached: true},
		{name: "tilde mid line", input: []string{"a~.b"}, want: "a~.b"},
		{name: "literal tilde", input: []string{"~~x"}, want: "~x"},
		{name: "help", input: []string{"~?"}, want: "", help: true},
		{name: "other byte after tilde", input: []string{"~a"}, want: "~a"},
		{name: "tilde before newline", input: []string{"~\r"}, want: "~\r"},
		{name: "split across writes", input: []string{"x\n", "~", "."}, want: "x\n", detached: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, help bytes.Buffer
			e := newEscapeWriter(&out, &help)
			for _, in := range tt.input {
				n, err := e.Write([]byte(in))
				require.NoError(t, err)
				assert.Equal(t, len(in), n)
			}
			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, tt.help, help.Len() > 0)
			assert.Equal(t, tt.detached, isDetached(e))
		})
	}
}

func TestEscapeWriterStopsAtDetach(t *testing.T) {
	var out bytes.Buffer
	e := newEscapeWriter(&out, &bytes.Buffer{})

	_, err := e.Write([]byte("~.after"))
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.True(t, isDetached(e))
}
