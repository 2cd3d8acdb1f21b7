package transcription

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"time"
)

// fakeConn replays scripted response pieces and records everything written.
type fakeConn struct {
	written    bytes.Buffer
	writeSizes []int
	shortAt    int // 1-based write that is only half accepted; 0 never
	responses  [][]byte
	eof        bool // report EOF instead of a timeout once responses run out
	deadlines  []time.Time
	closed     bool
	closeCalls int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}
	c.writeSizes = append(c.writeSizes, len(p))
	if c.shortAt == len(c.writeSizes) {
		n := len(p) / 2
		c.written.Write(p[:n])
		return n, nil
	}
	c.written.Write(p)
	return len(p), nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}
	if len(c.responses) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		return 0, os.ErrDeadlineExceeded
	}
	n := copy(p, c.responses[0])
	if n < len(c.responses[0]) {
		c.responses[0] = c.responses[0][n:]
	} else {
		c.responses = c.responses[1:]
	}
	return n, nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCalls++
	c.closed = true
	return nil
}

type fakeDialer struct {
	conn      *fakeConn
	err       error
	addresses []string
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (Conn, error) {
	d.addresses = append(d.addresses, address)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}
