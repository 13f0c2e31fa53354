package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var errChannelClosed = errors.New("channel closed")

// fakeChannel is an in-memory Channel. Data pushed with feed is returned by
// Read; writes are recorded and may trigger a scripted reply.
type fakeChannel struct {
	opts    AttachOptions
	reads   chan []byte
	closed  chan struct{}
	once    sync.Once
	onClose func()
	onWrite func(c *fakeChannel, p []byte)

	mu      sync.Mutex
	pending []byte
	written bytes.Buffer
}

func newFakeChannel(opts AttachOptions) *fakeChannel {
	return &fakeChannel{
		opts:   opts,
		reads:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) feed(data string) {
	select {
	case c.reads <- []byte(data):
	case <-c.closed:
	}
}

// hangup ends the read side with io.EOF once queued data is consumed.
func (c *fakeChannel) hangup() {
	close(c.reads)
}

func (c *fakeChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	select {
	case data, ok := <-c.reads:
		if !ok {
			return 0, io.EOF
		}
		n := copy(p, data)
		if n < len(data) {
			c.mu.Lock()
			c.pending = append(c.pending, data[n:]...)
			c.mu.Unlock()
		}
		return n, nil
	case <-c.closed:
		return 0, errChannelClosed
	}
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, errChannelClosed
	default:
	}
	c.mu.Lock()
	c.written.Write(p)
	c.mu.Unlock()
	if c.onWrite != nil {
		c.onWrite(c, p)
	}
	return len(p), nil
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

func (c *fakeChannel) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeAttacher hands out fakeChannels and records how they were opened.
type fakeAttacher struct {
	err     error
	delay   time.Duration
	setup   func(c *fakeChannel)
	onWrite func(c *fakeChannel, p []byte)

	mu       sync.Mutex
	channels []*fakeChannel
	open     int
	maxOpen  int
}

func (a *fakeAttacher) Attach(ctx context.Context, opts AttachOptions) (Channel, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	c := newFakeChannel(opts)
	c.onWrite = a.onWrite
	c.onClose = func() {
		a.mu.Lock()
		a.open--
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.channels = append(a.channels, c)
	a.open++
	a.maxOpen = max(a.maxOpen, a.open)
	a.mu.Unlock()

	if a.setup != nil {
		a.setup(c)
	}
	return c, nil
}

func (a *fakeAttacher) Channels() []*fakeChannel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*fakeChannel(nil), a.channels...)
}

func (a *fakeAttacher) MaxOpen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxOpen
}

// replyWith returns an onWrite hook that answers every write with chunks.
func replyWith(chunks ...string) func(c *fakeChannel, p []byte) {
	return func(c *fakeChannel, p []byte) {
		for _, chunk := range chunks {
			c.feed(chunk)
		}
	}
}
