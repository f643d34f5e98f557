// Package stomp is a STOMP 1.2 client over WebSocket, enough to
// subscribe to a Spring simple-broker topic.
package stomp

import (
	"io"
	"sync"

	"github.com/go-stomp/stomp/v3/frame"
)

// conn frames STOMP over one connection. Sends are serialised; receive
// must only be called from one goroutine.
type conn struct {
	rwc io.ReadWriteCloser
	r   *frame.Reader
	w   *frame.Writer

	mu sync.Mutex
}

func newConn(rwc io.ReadWriteCloser) *conn {
	return &conn{
		rwc: rwc,
		r:   frame.NewReader(rwc),
		w:   frame.NewWriter(rwc),
	}
}

func (c *conn) send(f *frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(f)
}

// receive returns the next frame, skipping heart-beats.
func (c *conn) receive() (*frame.Frame, error) {
	for {
		f, err := c.r.Read()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

func (c *conn) close() error {
	return c.rwc.Close()
}
