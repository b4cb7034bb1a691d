package relay

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
)

// conn makes Close idempotent and keeps CloseWrite reachable through the
// wrapper.
type conn struct {
	net.Conn
	once sync.Once
}

func wrapConn(c net.Conn) *conn {
	return &conn{Conn: c}
}

// Close closes the socket on the first call. Later calls return nil.
func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.Conn.Close()
	})
	return err
}

func (c *conn) CloseWrite() error {
	if cw, ok := c.Conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// IsExpectedCloseError reports whether err is ordinary connection teardown
// rather than a fault worth reporting.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
