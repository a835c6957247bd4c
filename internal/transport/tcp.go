package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const dialTimeout = 5 * time.Second

// tcpConn — сетевой мост (ser2net и т.п.), tcp://host:port.
type tcpConn struct {
	conn        net.Conn
	readTimeout time.Duration
	chunk       int
}

func openTCP(o Options) (Transport, error) {
	addr := strings.TrimPrefix(o.URL, "tcp://")
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newTCP(c, o.ReadTimeout, o.ChunkSize), nil
}

func newTCP(c net.Conn, readTimeout time.Duration, chunk int) *tcpConn {
	return &tcpConn{conn: c, readTimeout: readTimeout, chunk: chunk}
}

func (t *tcpConn) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (t *tcpConn) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *tcpConn) ChunkSize() int {
	return t.chunk
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}
