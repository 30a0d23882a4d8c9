package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgeparams/internal/protocol/frame"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallInProgress = errors.New("transport: call already in progress")
	ErrClientClosed   = errors.New("transport: client closed")
)

// Client issues service calls over one link. A client carries at most one
// call at a time; a second concurrent Call fails with ErrCallInProgress
// instead of queueing.
type Client struct {
	loc    Locator
	cfg    session.Config
	conn   net.Conn
	reader *bufio.Reader

	busy   atomic.Bool
	broken atomic.Bool
	nextID uint64
}

// Dial connects to a peer-mode node or a router.
func Dial(ctx context.Context, loc Locator, cfg session.Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	cfg.TLS.Enabled = loc.Secure()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	conn, err := dial(ctx, loc, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("locator", loc.String()).Msg("transport.Dial connected")
	return &Client{
		loc:    loc,
		cfg:    cfg,
		conn:   conn,
		reader: bufio.NewReader(conn),
		nextID: uint64(time.Now().UnixNano()),
	}, nil
}

func (c *Client) Locator() Locator { return c.loc }

func (c *Client) Close() error {
	c.broken.Store(true)
	return c.conn.Close()
}

// Call sends request to keyExpr and waits for the matching reply. A remote
// error frame is returned as *session.ErrorReply. Any I/O failure leaves
// the client unusable.
func (c *Client) Call(ctx context.Context, keyExpr string, request []byte) (session.Reply, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return session.Reply{}, ErrCallInProgress
	}
	defer c.busy.Store(false)
	if c.broken.Load() {
		return session.Reply{}, ErrClientClosed
	}

	c.nextID++
	id := c.nextID
	raw, err := session.EncodeQueryFrame(id, session.Query{KeyExpr: keyExpr, Payload: request})
	if err != nil {
		return session.Reply{}, err
	}

	deadline := time.Now().Add(c.cfg.QueryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return session.Reply{}, c.fail(ctx, err)
	}
	if _, err := c.conn.Write(raw); err != nil {
		return session.Reply{}, c.fail(ctx, err)
	}
	for {
		fr, err := session.ReadFrame(c.reader, frame.DefaultLimits())
		if err != nil {
			return session.Reply{}, c.fail(ctx, err)
		}
		if fr.Header.MessageID != id {
			log.Debug().Uint64("want", id).Uint64("got", fr.Header.MessageID).Msg("transport.Client.Call stale frame")
			continue
		}
		return session.DecodeResponse(fr)
	}
}

func (c *Client) fail(ctx context.Context, err error) error {
	c.broken.Store(true)
	_ = c.conn.Close()
	if ctx.Err() != nil {
		return fmt.Errorf("transport: call: %w", ctx.Err())
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return fmt.Errorf("transport: call: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("transport: call: %w", err)
}
