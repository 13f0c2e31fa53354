package console

import (
	"context"
	"io"
	"time"
)

// ReadSize is the largest chunk taken from a channel in one read.
const ReadSize = 4096

// AttachOptions selects the streams of an attached channel.
type AttachOptions struct {
	Stdin  bool
	Stdout bool
	Stderr bool
	Stream bool
	// Logs replays output the console produced before the attach.
	Logs bool
}

// Channel is one attached duplex connection to the console.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
}

// Attacher opens channels to a single console.
type Attacher interface {
	Attach(ctx context.Context, opts AttachOptions) (Channel, error)
}

// poller turns a blocking reader into something that can be polled with a
// bounded wait. One goroutine reads; chunks are handed over on a channel.
type poller struct {
	chunks chan RawChunk
	errs   chan error
	done   chan struct{}
}

func startPoller(r io.Reader) *poller {
	p := &poller{
		chunks: make(chan RawChunk, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go p.readLoop(r)
	return p
}

func (p *poller) readLoop(r io.Reader) {
	buf := make([]byte, ReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case p.chunks <- RawChunk{Data: data, At: time.Now()}:
			case <-p.done:
				return
			}
		}
		if err != nil {
			p.errs <- err
			return
		}
	}
}

// poll waits up to interval for the next chunk. It returns an empty chunk when
// the interval passes with no data. Buffered chunks are always drained before
// a read error is reported.
func (p *poller) poll(ctx context.Context, interval time.Duration) (RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return RawChunk{}, err
	}

	select {
	case c := <-p.chunks:
		return c, nil
	default:
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case c := <-p.chunks:
		return c, nil
	case err := <-p.errs:
		select {
		case c := <-p.chunks:
			p.errs <- err
			return c, nil
		default:
		}
		return RawChunk{}, err
	case <-timer.C:
		return RawChunk{}, nil
	case <-ctx.Done():
		return RawChunk{}, ctx.Err()
	}
}

func (p *poller) stop() {
	close(p.done)
}
