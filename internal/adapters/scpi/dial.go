package scpi

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

const defaultBaud = 9600

type Resource struct {
	Kind    string // "tcp" or "serial"
	Address string // host:port or device path
	Baud    int
}

// ParseResource accepts
//
//	tcp://host:port
//	TCPIP[n]::host::port::SOCKET
//	serial:///dev/ttyUSB0?baud=115200
//
// VXI-11 resources (TCPIP::host::INSTR) need a VISA stack and are rejected.
func ParseResource(s string) (Resource, error) {
	switch {
	case strings.HasPrefix(s, "tcp://"):
		addr := strings.TrimPrefix(s, "tcp://")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return Resource{}, fmt.Errorf("resource %q: %w", s, err)
		}
		return Resource{Kind: "tcp", Address: addr}, nil

	case strings.HasPrefix(strings.ToUpper(s), "TCPIP"):
		parts := strings.Split(s, "::")
		if len(parts) == 4 && strings.EqualFold(parts[3], "SOCKET") {
			if _, err := strconv.Atoi(parts[2]); err != nil {
				return Resource{}, fmt.Errorf("resource %q: bad port %q", s, parts[2])
			}
			return Resource{Kind: "tcp", Address: net.JoinHostPort(parts[1], parts[2])}, nil
		}
		return Resource{}, fmt.Errorf("resource %q: only raw SOCKET resources are supported", s)

	case strings.HasPrefix(s, "serial://"):
		u, err := url.Parse(s)
		if err != nil {
			return Resource{}, fmt.Errorf("resource %q: %w", s, err)
		}
		res := Resource{Kind: "serial", Address: u.Host + u.Path, Baud: defaultBaud}
		if res.Address == "" {
			return Resource{}, fmt.Errorf("resource %q: missing device", s)
		}
		if b := u.Query().Get("baud"); b != "" {
			if res.Baud, err = strconv.Atoi(b); err != nil || res.Baud <= 0 {
				return Resource{}, fmt.Errorf("resource %q: bad baud %q", s, b)
			}
		}
		return res, nil
	}
	return Resource{}, fmt.Errorf("resource %q: unknown scheme", s)
}

// NewDialer returns a ports.Dialer using timeout for connecting and for
// every exchange afterwards.
func NewDialer(timeout time.Duration) ports.Dialer {
	return func(resource string) (ports.Instrument, error) {
		return Dial(resource, timeout)
	}
}

func Dial(resource string, timeout time.Duration) (*Conn, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}
	switch res.Kind {
	case "serial":
		return OpenSerial(res.Address, res.Baud, timeout)
	default:
		return DialTCP(res.Address, timeout)
	}
}

func DialTCP(addr string, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInstrumentUnreachable, "dial %s: %v", addr, err)
	}
	return NewConn(nc, "tcp://"+addr, timeout), nil
}

func OpenSerial(name string, baud int, timeout time.Duration) (*Conn, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInstrumentUnreachable, "open %s: %v", name, err)
	}
	return NewConn(p, "serial://"+name, timeout), nil
}
