package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrInvalidLocator = errors.New("transport: invalid locator")
	ErrInvalidMode    = errors.New("transport: invalid mode")
)

// Scheme is the locator protocol prefix.
type Scheme string

const (
	SchemeTCP Scheme = "tcp"
	SchemeTLS Scheme = "tls"
)

// Locator is "<scheme>/<host>:<port>", e.g. "tcp/192.168.1.10:7447".
type Locator struct {
	Scheme  Scheme
	Address string
}

func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	scheme, addr, ok := strings.Cut(raw, "/")
	if !ok {
		return Locator{}, fmt.Errorf("%w: %q: missing scheme", ErrInvalidLocator, raw)
	}
	s := Scheme(strings.ToLower(scheme))
	switch s {
	case SchemeTCP, SchemeTLS:
	default:
		return Locator{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidLocator, raw, scheme)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %q: %w", ErrInvalidLocator, raw, err)
	}
	if port == "" {
		return Locator{}, fmt.Errorf("%w: %q: missing port", ErrInvalidLocator, raw)
	}
	return Locator{Scheme: s, Address: net.JoinHostPort(host, port)}, nil
}

func (l Locator) String() string {
	return string(l.Scheme) + "/" + l.Address
}

func (l Locator) Secure() bool { return l.Scheme == SchemeTLS }

// Mode selects whether an interface listens for callers or dials a router.
type Mode string

const (
	ModePeer   Mode = "peer"
	ModeClient Mode = "client"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModePeer, ModeClient:
		return m, nil
	case "":
		return ModePeer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}
