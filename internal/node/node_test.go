package node

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgeparams/internal/testutil/testlog"
)

func echoHandler(request, reply []byte) (int, error) {
	return copy(reply, request), nil
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{Name: "arm", Namespace: "robot/", DomainID: 7, GUID: [GIDSize]byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n
}

func TestNewValidatesIdentity(t *testing.T) {
	testlog.Start(t)
	for _, cfg := range []Config{{}, {Name: "a/b"}, {Name: "ok", Namespace: "a//b"}} {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidNode) {
			t.Fatalf("cfg %+v: expected ErrInvalidNode, got %v", cfg, err)
		}
	}
	n, err := New(Config{Name: "solo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if n.FullyQualifiedName() != "/solo" {
		t.Fatalf("fq name=%q", n.FullyQualifiedName())
	}
	if n.GUID() == ([GIDSize]byte{}) {
		t.Fatalf("zero guid was not replaced")
	}
}

func TestDeclareServiceKeyExpr(t *testing.T) {
	testlog.Start(t)
	n := newTestNode(t)
	s, err := n.DeclareService(ServiceSpec{
		Name:         "~/get_parameters",
		TypeName:     "rcl_interfaces::srv::dds_::GetParameters_",
		Hash:         "TypeHashNotSupported",
		ReplyBufSize: 64,
		Handler:      echoHandler,
	})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	want := "7/robot/arm/get_parameters/rcl_interfaces::srv::dds_::GetParameters_/TypeHashNotSupported"
	if s.KeyExpr() != want {
		t.Fatalf("key expr=%q want=%q", s.KeyExpr(), want)
	}
	parsed, err := ParseKeyExpr(s.KeyExpr())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.DomainID != 7 || parsed.Name != "robot/arm/get_parameters" || parsed.Hash != "TypeHashNotSupported" {
		t.Fatalf("parsed=%+v", parsed)
	}
}

func TestDeclareServiceResultCodes(t *testing.T) {
	testlog.Start(t)
	n := newTestNode(t)
	spec := ServiceSpec{Name: "x", TypeName: "T", Hash: "H", ReplyBufSize: 8, Handler: echoHandler}
	if _, err := n.DeclareService(spec); ResultOf(err) != ResultOK {
		t.Fatalf("first declare: %v", err)
	}
	_, err := n.DeclareService(spec)
	if !errors.Is(err, ErrDuplicateService) || ResultOf(err) != ResultError {
		t.Fatalf("duplicate: %v (%s)", err, ResultOf(err))
	}
	bad := spec
	bad.Name = "y"
	bad.ReplyBufSize = 0
	if _, err := n.DeclareService(bad); !errors.Is(err, ErrInvalidService) {
		t.Fatalf("zero reply buffer: %v", err)
	}
	n.Close()
	bad.ReplyBufSize = 8
	_, err = n.DeclareService(bad)
	if ResultOf(err) != ResultNotReady {
		t.Fatalf("closed node: %v (%s)", err, ResultOf(err))
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	last  error
}

func (o *recordingObserver) ObserveRequest(service string, d time.Duration, n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.last = err
}

func TestServeQueryRoutesAndAttaches(t *testing.T) {
	testlog.Start(t)
	obs := &recordingObserver{}
	n, err := New(Config{Name: "arm", GUID: [GIDSize]byte{9}, Observer: obs})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s, err := n.DeclareService(ServiceSpec{Name: "echo", TypeName: "T", Hash: "H", ReplyBufSize: 4, Handler: echoHandler})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}

	var got []string
	var seqs []int64
	send := func(reply []byte, att Attachment) error {
		got = append(got, string(reply))
		seqs = append(seqs, att.Sequence)
		if att.GID[0] != 9 {
			t.Fatalf("attachment gid=%v", att.GID)
		}
		return nil
	}
	if err := n.ServeQuery(s.KeyExpr(), []byte("abcdef"), send); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if err := n.ServeQuery(s.KeyExpr(), []byte("z"), send); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if got[0] != "abcd" || got[1] != "z" {
		t.Fatalf("replies=%q", got)
	}
	if seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("sequence numbers=%v", seqs)
	}
	if obs.calls != 2 || obs.last != nil {
		t.Fatalf("observer calls=%d last=%v", obs.calls, obs.last)
	}
	if err := n.ServeQuery("0/nope/T/H", nil, send); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestServeHandlerErrorSkipsSend(t *testing.T) {
	testlog.Start(t)
	n := newTestNode(t)
	boom := errors.New("boom")
	s, err := n.DeclareService(ServiceSpec{Name: "fail", TypeName: "T", Hash: "H", ReplyBufSize: 4,
		Handler: func([]byte, []byte) (int, error) { return 3, boom }})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	err = s.Serve(nil, func([]byte, Attachment) error {
		t.Fatalf("send called after handler error")
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestAttachmentBinary(t *testing.T) {
	in := Attachment{Sequence: -3, Time: 1700000000123, GID: [GIDSize]byte{0xaa, 15: 0xbb}}
	b, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) != AttachmentLen || b[16] != GIDSize {
		t.Fatalf("packed=% x", b)
	}
	var out Attachment
	if err := out.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
	if err := out.UnmarshalBinary(b[:20]); err == nil {
		t.Fatalf("expected error on short attachment")
	}
}
