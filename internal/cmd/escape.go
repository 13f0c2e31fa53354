package cmd

import (
	"errors"
	"io"
)

// ErrUserDetach is returned when the user leaves an attached console with ~.
var ErrUserDetach = errors.New("detached from console")

const escapeHelp = "\r\nSupported escape sequences:\r\n  ~.  Detach (the server keeps running)\r\n  ~~  Send literal ~ character\r\n  ~?  Show this help\r\n"

// escapeWriter forwards keyboard input to the console and watches for
// ssh-style escapes. A ~ is only special right after a newline or at the
// start of input.
//
// It is not safe for concurrent use; input comes from a single stdin copy.
type escapeWriter struct {
	w            io.Writer
	help         io.Writer
	afterNewline bool
	pendingTilde bool
	detached     chan struct{}
}

func newEscapeWriter(w, help io.Writer) *escapeWriter {
	return &escapeWriter{
		w:            w,
		help:         help,
		afterNewline: true,
		detached:     make(chan struct{}),
	}
}

func (e *escapeWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' || b == '\r' {
			if e.pendingTilde {
				e.pendingTilde = false
				if _, err := e.w.Write([]byte{'~'}); err != nil {
					return len(p), err
				}
			}
			if _, err := e.w.Write([]byte{b}); err != nil {
				return len(p), err
			}
			e.afterNewline = true
			continue
		}

		if e.afterNewline && b == '~' {
			e.pendingTilde = true
			e.afterNewline = false
			continue
		}

		if e.pendingTilde {
			e.pendingTilde = false
			var err error
			switch b {
			case '.':
				close(e.detached)
				return len(p), nil
			case '~':
				_, err = e.w.Write([]byte{'~'})
			case '?':
				_, err = io.WriteString(e.help, escapeHelp)
			default:
				_, err = e.w.Write([]byte{'~', b})
			}
			if err != nil {
				return len(p), err
			}
			continue
		}

		if _, err := e.w.Write([]byte{b}); err != nil {
			return len(p), err
		}
		e.afterNewline = false
	}
	return len(p), nil
}

// Detached is closed once ~. has been typed.
func (e *escapeWriter) Detached() <-chan struct{} {
	return e.detached
}
