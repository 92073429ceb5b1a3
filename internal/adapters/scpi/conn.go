// Package scpi speaks line-terminated SCPI to an instrument over any byte
// stream, with IEEE 488.2 definite-length blocks for binary replies.
package scpi

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Port is the byte stream under a Conn: a TCP socket, a serial line or a
// test double.
type Port interface {
	io.ReadWriteCloser
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// TransportError is an I/O failure on the link. It matches
// domain.ErrInstrumentUnreachable as well as the underlying error.
type TransportError struct {
	Resource string
	Op       string
	Cmd      string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("scpi %s %s %q: %v", e.Resource, e.Op, e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{domain.ErrInstrumentUnreachable, e.Err}
}

var ErrMalformedBlock = errors.New("malformed binary block")

type Conn struct {
	mu       sync.Mutex
	port     Port
	r        *bufio.Reader
	timeout  time.Duration
	resource string
}

// NewConn wraps port. A positive timeout is applied per exchange when the
// port supports deadlines.
func NewConn(port Port, resource string, timeout time.Duration) *Conn {
	return &Conn{
		port:     port,
		r:        bufio.NewReaderSize(port, 64<<10),
		timeout:  timeout,
		resource: resource,
	}
}

func (c *Conn) Write(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(cmd)
}

func (c *Conn) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(cmd); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", errors.WithStack(&TransportError{Resource: c.resource, Op: "read", Cmd: cmd, Err: err})
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// QueryBinary sends cmd and decodes a "#<n><len><payload>" block. The
// indefinite form "#0<payload>\n" is accepted too.
func (c *Conn) QueryBinary(cmd string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(cmd); err != nil {
		return nil, err
	}
	readErr := func(err error) error {
		return errors.WithStack(&TransportError{Resource: c.resource, Op: "read", Cmd: cmd, Err: err})
	}

	b, err := c.r.ReadByte()
	for err == nil && (b == ' ' || b == '\r' || b == '\n') {
		b, err = c.r.ReadByte()
	}
	if err != nil {
		return nil, readErr(err)
	}
	if b != '#' {
		return nil, errors.Wrapf(ErrMalformedBlock, "%s: expected '#', got %q", cmd, b)
	}
	d, err := c.r.ReadByte()
	if err != nil {
		return nil, readErr(err)
	}
	if d < '0' || d > '9' {
		return nil, errors.Wrapf(ErrMalformedBlock, "%s: bad length digit %q", cmd, d)
	}

	if d == '0' {
		payload, err := c.r.ReadBytes('\n')
		if err != nil {
			return nil, readErr(err)
		}
		return payload[:len(payload)-1], nil
	}

	lenBuf := make([]byte, int(d-'0'))
	if _, err := io.ReadFull(c.r, lenBuf); err != nil {
		return nil, readErr(err)
	}
	n, err := strconv.Atoi(string(lenBuf))
	if err != nil || n < 0 {
		return nil, errors.Wrapf(ErrMalformedBlock, "%s: bad length %q", cmd, lenBuf)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, readErr(err)
	}
	// block is followed by the message terminator
	if nl, err := c.r.ReadByte(); err == nil && nl != '\n' {
		c.r.UnreadByte()
	}
	return payload, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}

func (c *Conn) send(cmd string) error {
	if d, ok := c.port.(deadliner); ok && c.timeout > 0 {
		if err := d.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return errors.WithStack(&TransportError{Resource: c.resource, Op: "deadline", Cmd: cmd, Err: err})
		}
	}
	if _, err := io.WriteString(c.port, cmd+"\n"); err != nil {
		return errors.WithStack(&TransportError{Resource: c.resource, Op: "write", Cmd: cmd, Err: err})
	}
	return nil
}

var _ ports.Instrument = (*Conn)(nil)
