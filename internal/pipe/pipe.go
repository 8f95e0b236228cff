// Package pipe provides the server side of the local byte streams the
// encoder reads its raw inputs from. A Channel starts listening when it is
// created, so the encoder may be spawned right after and connect whenever
// it opens its inputs.
package pipe

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConnectTimeout is returned when the peer did not connect in time.
	ErrConnectTimeout = errors.New("pipe: connect timeout")
	// ErrAborted is returned when a wait was cancelled by the caller.
	ErrAborted = errors.New("pipe: wait aborted")
	// ErrNotConnected is returned by Write before the peer connected.
	ErrNotConnected = errors.New("pipe: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipe: closed")
)

// DefaultPrefix names every channel this process creates. The orphan sweep
// looks for its Marker in encoder command lines.
const DefaultPrefix = "screenrec"

// Channel is a single-use, single-client byte stream. The first accepted
// connection is kept and the listener is closed behind it.
type Channel struct {
	name    string
	url     string
	bufSize int

	ln      net.Listener
	cleanup func()

	connected chan struct{}

	mu        sync.Mutex
	conn      net.Conn
	acceptErr error
	closed    bool

	closeOnce sync.Once
}

// Listen creates a uniquely named channel and starts accepting in the
// background. bufSize is applied to the connection's write buffer where the
// platform allows it.
func Listen(prefix string, bufSize int) (*Channel, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	name := prefix + "-" + shortID()

	ln, url, cleanup, err := listen(name, bufSize)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", name, err)
	}

	c := &Channel{
		name:      name,
		url:       url,
		bufSize:   bufSize,
		ln:        ln,
		cleanup:   cleanup,
		connected: make(chan struct{}),
	}
	go c.accept()
	return c, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (c *Channel) accept() {
	conn, err := c.ln.Accept()
	_ = c.ln.Close()

	c.mu.Lock()
	switch {
	case c.closed:
		if conn != nil {
			_ = conn.Close()
		}
	case err != nil:
		c.acceptErr = err
	default:
		tuneConn(conn, c.bufSize)
		c.conn = conn
	}
	c.mu.Unlock()
	close(c.connected)
}

// Name is the unique channel name (prefix plus random suffix).
func (c *Channel) Name() string { return c.name }

// URL is what the encoder should open as its input.
func (c *Channel) URL() string { return c.url }

// Connected is closed once the accept attempt finished, successfully or not.
func (c *Channel) Connected() <-chan struct{} { return c.connected }

// WaitConnected blocks until the peer connects, timeout elapses or abort is
// closed. A non-positive timeout waits without a bound.
func (c *Channel) WaitConnected(timeout time.Duration, abort <-chan struct{}) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-c.connected:
	case <-expired:
		return ErrConnectTimeout
	case <-abort:
		return ErrAborted
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.acceptErr != nil {
		return fmt.Errorf("accept %s: %w", c.name, c.acceptErr)
	}
	return nil
}

// Write sends p in full to the connected peer.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return 0, ErrClosed
	}
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}

// Close stops listening, closes the connection (unblocking a pending Write)
// and removes any filesystem entry backing the channel. It is idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()

		// The accept goroutine may already have closed the listener.
		_ = c.ln.Close()
		if conn != nil {
			if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		if c.cleanup != nil {
			c.cleanup()
		}
	})
	return err
}
