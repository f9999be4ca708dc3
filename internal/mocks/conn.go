package mocks

import (
	"encoding/json"
	"errors"
	"sync"

	"chat-core/internal/protocol"
)

// ErrConnClosed is returned by Send once the connection is closed or set to fail.
var ErrConnClosed = errors.New("connection closed")

// Conn is an in-memory transport connection that records every frame it is sent.
type Conn struct {
	id       string
	frames   []protocol.Frame
	closed   bool
	failSend bool
	mu       sync.Mutex
}

// NewConn builds a recording connection.
func NewConn(id string) *Conn {
	return &Conn{id: id}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return ErrConnClosed
	}
	var f protocol.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailSends makes every following Send return an error.
func (c *Conn) FailSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = true
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns every recorded frame.
func (c *Conn) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Events returns the recorded frames carrying the given event name.
func (c *Conn) Events(event string) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Decode unmarshals the payload of the i-th frame of an event into v.
func (c *Conn) Decode(event string, i int, v any) error {
	frames := c.Events(event)
	if i >= len(frames) {
		return errors.New("no such frame")
	}
	return json.Unmarshal(frames[i].Data, v)
}
