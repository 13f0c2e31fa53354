package console

import (
	"errors"
	"fmt"
)

// ErrMonitorRunning is returned by Monitor.Run when a loop is already active.
var ErrMonitorRunning = errors.New("monitor already running")

// NotFoundError reports that the target container does not exist. It is not
// retryable without operator action.
type NotFoundError struct {
	Container string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("container %s not found", e.Container)
}

// ChannelError reports an I/O or decode failure on a console channel. The
// channel is closed when this is returned; the operation is safe to retry.
type ChannelError struct {
	Op  string // attach, write, read, decode
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("console channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// classifyAttach turns an attach failure into the console error taxonomy.
func classifyAttach(err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return err
	}
	var ce *ChannelError
	if errors.As(err, &ce) {
		return err
	}
	return &ChannelError{Op: "attach", Err: err}
}
