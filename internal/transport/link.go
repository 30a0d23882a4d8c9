package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/protocol/frame"
	"github.com/danmuck/edgeparams/internal/protocol/schema"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// link serves queries arriving on one connection against a node. Queries
// on a link are answered in order, one at a time.
type link struct {
	conn   net.Conn
	reader *bufio.Reader
	node   *node.Node
	cfg    session.Config
	tracer trace.Tracer
	remote string
}

// serve runs until the peer hangs up, a frame cannot be read or written,
// or ctx is done.
func (l *link) serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.conn.Close() })
	defer stop()

	for {
		if err := l.setIdleDeadline(); err != nil {
			return err
		}
		fr, err := session.ReadFrame(l.reader, frame.DefaultLimits())
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if fr.Header.MessageType != schema.MsgQuery {
			log.Warn().Str("remote", l.remote).Uint32("message_type", fr.Header.MessageType).
				Msg("transport.link.serve unexpected message")
			if err := l.writeError(fr.Header.MessageID, session.ErrorReply{
				Code:    session.ErrorCodeMalformed,
				Message: "expected query",
			}); err != nil {
				return err
			}
			continue
		}
		if err := l.answer(ctx, fr); err != nil {
			return err
		}
	}
}

// answer serves one query frame. Only write failures are returned; service
// errors go back to the caller as error frames.
func (l *link) answer(ctx context.Context, fr frame.Frame) error {
	id := fr.Header.MessageID
	q, err := session.DecodeQueryFrame(fr)
	if err != nil {
		log.Warn().Err(err).Str("remote", l.remote).Msg("transport.link.answer decode query")
		return l.writeError(id, session.ErrorReply{Code: session.ErrorCodeMalformed, Message: err.Error()})
	}

	_, span := l.tracer.Start(ctx, "edgeparams.query",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("edgeparams.key_expr", q.KeyExpr),
			attribute.Int("edgeparams.request_bytes", len(q.Payload)),
		),
	)
	defer span.End()

	var writeErr error
	sent := 0
	err = l.node.ServeQuery(q.KeyExpr, q.Payload, func(reply []byte, att node.Attachment) error {
		raw, err := att.MarshalBinary()
		if err != nil {
			return err
		}
		writeErr = l.writeReply(id, session.Reply{KeyExpr: q.KeyExpr, Payload: reply, Attachment: raw})
		sent = len(reply)
		return writeErr
	})
	if writeErr != nil {
		span.RecordError(writeErr)
		span.SetStatus(codes.Error, "write reply")
		return writeErr
	}
	if err != nil {
		code := errorCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int64("edgeparams.error_code", int64(code)))
		return l.writeError(id, session.ErrorReply{KeyExpr: q.KeyExpr, Code: code, Message: err.Error()})
	}
	span.SetAttributes(attribute.Int("edgeparams.reply_bytes", sent))
	return nil
}

func errorCode(err error) uint32 {
	switch {
	case errors.Is(err, node.ErrUnknownService):
		return session.ErrorCodeUnknownService
	case errors.Is(err, node.ErrNotReady):
		return session.ErrorCodeNotReady
	default:
		return session.ErrorCodeHandler
	}
}

func (l *link) writeReply(id uint64, r session.Reply) error {
	raw, err := session.EncodeReplyFrame(id, r)
	if err != nil {
		return err
	}
	return l.write(raw)
}

func (l *link) writeError(id uint64, e session.ErrorReply) error {
	raw, err := session.EncodeErrorFrame(id, e)
	if err != nil {
		return err
	}
	return l.write(raw)
}

func (l *link) write(raw []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := l.conn.Write(raw)
	return err
}

func (l *link) setIdleDeadline() error {
	if l.cfg.IdleTimeout <= 0 {
		return l.conn.SetReadDeadline(time.Time{})
	}
	return l.conn.SetReadDeadline(time.Now().Add(l.cfg.IdleTimeout))
}
