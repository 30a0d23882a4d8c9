package paramsrv

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/paramstore"
	"github.com/danmuck/edgeparams/internal/rcl"
	"github.com/danmuck/edgeparams/internal/testutil/testlog"
)

type stubEntry struct {
	desc  params.Descriptor
	value params.Value
}

// stubProvider is a map-backed Provider that counts calls.
type stubProvider struct {
	entries  map[string]*stubEntry
	resolves int
	sets     int
	refuse   map[string]error
}

func newStub() *stubProvider {
	return &stubProvider{entries: make(map[string]*stubEntry), refuse: make(map[string]error)}
}

func (p *stubProvider) declare(d params.Descriptor, v params.Value) {
	p.entries[d.Name] = &stubEntry{desc: d, value: v}
}

func (p *stubProvider) Resolve(name string) (params.Ref, bool) {
	p.resolves++
	e, ok := p.entries[name]
	return e, ok
}

func (p *stubProvider) Describe(ref params.Ref) params.Descriptor { return ref.(*stubEntry).desc }
func (p *stubProvider) Get(ref params.Ref) params.Value { return ref.(*stubEntry).value }
func (p *stubProvider) Type(ref params.Ref) params.Type { return ref.(*stubEntry).value.Type }

func (p *stubProvider) Set(ref params.Ref, v params.Value) error {
	p.sets++
	e := ref.(*stubEntry)
	if err := p.refuse[e.desc.Name]; err != nil {
		return err
	}
	e.value = v.Clone()
	return nil
}

func (p *stubProvider) children(prefix string, wantPrefixes bool, emit func(string) bool) int {
	prefix = strings.Trim(prefix, "/")
	seen := map[string]bool{}
	var out []string
	for name := range p.entries {
		rest := name
		if prefix != "" {
			if !strings.HasPrefix(name, prefix+"/") {
				continue
			}
			rest = name[len(prefix)+1:]
		}
		i := strings.Index(rest, "/")
		var item string
		switch {
		case i < 0 && !wantPrefixes:
			item = name
		case i >= 0 && wantPrefixes:
			item = rest[:i]
			if prefix != "" {
				item = prefix + "/" + item
			}
		default:
			continue
		}
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	sort.Strings(out)
	for _, item := range out {
		if !emit(item) {
			break
		}
	}
	return len(out)
}

func (p *stubProvider) ListParameters(prefix string, emit func(string) bool) int {
	return p.children(prefix, false, emit)
}

func (p *stubProvider) ListPrefixes(prefix string, emit func(string) bool) int {
	return p.children(prefix, true, emit)
}

type countingObserver struct {
	rejected  []string
	truncated int
}

func (o *countingObserver) SetRejected(kind rcl.Kind, name string, err error) {
	o.rejected = append(o.rejected, name)
}

func (o *countingObserver) Truncated(kind rcl.Kind, written, total int) { o.truncated++ }

func fixture() *stubProvider {
	p := newStub()
	p.declare(params.Descriptor{Name: "motor/rate", Type: params.TypeInteger,
		IntRange: &params.IntegerRange{Min: 0, Max: 100, Step: 5}}, params.IntValue(10))
	p.declare(params.Descriptor{Name: "motor/gain", Type: params.TypeDouble,
		FloatRange: &params.FloatingPointRange{Min: 0, Max: 1, Step: 0.25}}, params.DoubleValue(0.5))
	p.declare(params.Descriptor{Name: "motor/serial", Type: params.TypeString, ReadOnly: true}, params.StringValue("SN-1"))
	p.declare(params.Descriptor{Name: "motor/pid/kp", Type: params.TypeDouble}, params.DoubleValue(1.5))
	p.declare(params.Descriptor{Name: "label", Type: params.TypeString, DynamicTyping: true}, params.StringValue("dev"))
	p.declare(params.Descriptor{Name: "weights", Type: params.TypeIntegerArray,
		IntRange: &params.IntegerRange{Min: -10, Max: 10}}, params.IntArrayValue([]int64{1, 2}))
	return p
}

func call(t *testing.T, e *Engine, kind rcl.Kind, req rcl.Message, replyCap int) rcl.Message {
	t.Helper()
	b, err := rcl.Marshal(req, nil)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	reply := make([]byte, replyCap)
	n, err := e.Handle(kind, b, reply)
	if err != nil {
		t.Fatalf("handle %s: %v", kind, err)
	}
	out, err := rcl.NewReply(kind)
	if err != nil {
		t.Fatalf("new reply: %v", err)
	}
	if err := rcl.Unmarshal(reply[:n], out); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	return out
}

func set(t *testing.T, e *Engine, ps ...params.Parameter) []rcl.SetParametersResult {
	t.Helper()
	out := call(t, e, rcl.KindSetParameters, &rcl.SetParametersRequest{Parameters: ps}, 1024)
	return out.(*rcl.SetParametersReply).Results
}

func TestSetThenGetReturnsSameValue(t *testing.T) {
	testlog.Start(t)
	p := fixture()
	p.declare(params.Descriptor{Name: "dev/enabled", Type: params.TypeBool}, params.BoolValue(false))
	p.declare(params.Descriptor{Name: "dev/name", Type: params.TypeString}, params.StringValue("arm"))
	p.declare(params.Descriptor{Name: "dev/blob", Type: params.TypeByteArray}, params.Value{})
	p.declare(params.Descriptor{Name: "dev/mask", Type: params.TypeBoolArray}, params.Value{})
	p.declare(params.Descriptor{Name: "dev/gains", Type: params.TypeDoubleArray}, params.Value{})
	p.declare(params.Descriptor{Name: "dev/tags", Type: params.TypeStringArray}, params.Value{})
	e := NewEngine(p)
	in := []params.Parameter{
		{Name: "motor/rate", Value: params.IntValue(55)},
		{Name: "motor/gain", Value: params.DoubleValue(0.75)},
		{Name: "weights", Value: params.IntArrayValue([]int64{-10, 0, 10})},
		{Name: "dev/enabled", Value: params.BoolValue(true)},
		{Name: "dev/name", Value: params.StringValue("left arm")},
		{Name: "dev/blob", Value: params.ByteArrayValue([]byte{0x00, 0x7f, 0xff})},
		{Name: "dev/mask", Value: params.BoolArrayValue([]bool{true, false, true})},
		{Name: "dev/gains", Value: params.DoubleArrayValue([]float64{-1.5, 0, 2.25})},
		{Name: "dev/tags", Value: params.StringArrayValue([]string{"a", "", "ccc"})},
	}
	for i, res := range set(t, e, in...) {
		if !res.Successful || res.Reason != "" {
			t.Fatalf("set %d: %+v", i, res)
		}
	}
	names := make([]string, len(in))
	for i, ps := range in {
		names[i] = ps.Name
	}
	got := call(t, e, rcl.KindGetParameters, &rcl.NamesRequest{Names: names}, 1024).(*rcl.GetParametersReply)
	if len(got.Values) != len(in) {
		t.Fatalf("got %d values want %d", len(got.Values), len(in))
	}
	for i, v := range got.Values {
		if !v.Equal(in[i].Value) {
			t.Fatalf("get %s = %#v want %#v", names[i], v, in[i].Value)
		}
	}
	types := call(t, e, rcl.KindGetParameterTypes, &rcl.NamesRequest{Names: names}, 128).(*rcl.GetParameterTypesReply)
	for i := range in {
		if types.Types[i] != in[i].Value.Type {
			t.Fatalf("types=%v at %d want %s", types.Types, i, in[i].Value.Type)
		}
	}
}

func TestSetRejectionsNeverReachSetter(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		param  params.Parameter
		reason error
	}{
		{params.Parameter{Name: "motor/rate", Value: params.IntValue(101)}, params.ErrOutOfRange},
		{params.Parameter{Name: "motor/rate", Value: params.IntValue(12)}, params.ErrOutOfRange},
		{params.Parameter{Name: "motor/gain", Value: params.DoubleValue(0.3)}, params.ErrOutOfRange},
		{params.Parameter{Name: "weights", Value: params.IntArrayValue([]int64{0, 11})}, params.ErrOutOfRange},
		{params.Parameter{Name: "motor/serial", Value: params.StringValue("SN-2")}, params.ErrReadOnly},
		{params.Parameter{Name: "motor/serial", Value: params.IntValue(3)}, params.ErrReadOnly},
		{params.Parameter{Name: "motor/rate", Value: params.DoubleValue(10)}, params.ErrTypeMismatch},
		{params.Parameter{Name: "missing", Value: params.IntValue(1)}, params.ErrNotFound},
	}
	for _, tc := range cases {
		p := fixture()
		e := NewEngine(p)
		res := set(t, e, tc.param)
		if len(res) != 1 || res[0].Successful || res[0].Reason != tc.reason.Error() {
			t.Fatalf("%s=%#v: got %+v want reason %q", tc.param.Name, tc.param.Value, res, tc.reason)
		}
		if p.sets != 0 {
			t.Fatalf("%s: setter invoked %d times", tc.param.Name, p.sets)
		}
	}
}

func TestDynamicTypingForwardsRetag(t *testing.T) {
	testlog.Start(t)
	p := fixture()
	e := NewEngine(p)
	res := set(t, e, params.Parameter{Name: "label", Value: params.IntValue(4)})
	if !res[0].Successful || p.sets != 1 {
		t.Fatalf("dynamic set: %+v sets=%d", res, p.sets)
	}
	types := call(t, e, rcl.KindGetParameterTypes, &rcl.NamesRequest{Names: []string{"label"}}, 64).(*rcl.GetParameterTypesReply)
	if types.Types[0] != params.TypeInteger {
		t.Fatalf("type after retag=%s", types.Types[0])
	}
}

func TestDynamicTypingKeepsDeclaredRange(t *testing.T) {
	testlog.Start(t)
	p := newStub()
	p.declare(params.Descriptor{Name: "x", Type: params.TypeInteger, DynamicTyping: true,
		IntRange: &params.IntegerRange{Min: 0, Max: 10}}, params.IntValue(1))
	e := NewEngine(p)
	res := set(t, e,
		params.Parameter{Name: "x", Value: params.IntValue(1000)},
		params.Parameter{Name: "x", Value: params.DoubleValue(1000)},
	)
	for i, r := range res {
		if r.Successful || r.Reason != params.ErrOutOfRange.Error() {
			t.Fatalf("set %d: %+v", i, r)
		}
	}
	if p.sets != 0 {
		t.Fatalf("setter invoked %d times", p.sets)
	}

	store := paramstore.New()
	if err := store.Declare(params.Descriptor{Name: "x", Type: params.TypeInteger, DynamicTyping: true,
		IntRange: &params.IntegerRange{Min: 0, Max: 10}}, params.IntValue(1)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	e = NewEngine(store)
	res = set(t, e,
		params.Parameter{Name: "x", Value: params.DoubleValue(7)},
		params.Parameter{Name: "x", Value: params.IntValue(11)},
	)
	if !res[0].Successful || res[1].Successful || res[1].Reason != params.ErrOutOfRange.Error() {
		t.Fatalf("range lost after a double was stored: %+v", res)
	}
	desc := call(t, e, rcl.KindDescribeParameters, &rcl.NamesRequest{Names: []string{"x"}}, 256).(*rcl.DescribeParametersReply)
	if desc.Descriptors[0].Type != params.TypeInteger || desc.Descriptors[0].IntRange == nil {
		t.Fatalf("declared descriptor changed: %+v", desc.Descriptors[0])
	}
}

func TestListMinimumReplySize(t *testing.T) {
	testlog.Start(t)
	e := NewEngine(newStub())
	req, err := rcl.Marshal(&rcl.ListParametersRequest{}, nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	least := cdr.HeaderLen + 4 + maxSeqHeaderSize
	for size := cdr.HeaderLen + 4 + 4; size < least; size++ {
		if _, err := e.Handle(rcl.KindListParameters, req, make([]byte, size)); !errors.Is(err, ErrReplyTooSmall) {
			t.Fatalf("size %d: expected ErrReplyTooSmall, got %v", size, err)
		}
	}
	reply := make([]byte, least)
	n, err := e.Handle(rcl.KindListParameters, req, reply)
	if err != nil {
		t.Fatalf("size %d: %v", least, err)
	}
	var out rcl.ListParametersReply
	if err := rcl.Unmarshal(reply[:n], &out); err != nil || len(out.Names) != 0 || len(out.Prefixes) != 0 {
		t.Fatalf("empty listing: %+v err=%v", out, err)
	}
}

func TestProviderReasonForwardedVerbatim(t *testing.T) {
	testlog.Start(t)
	p := fixture()
	p.refuse["motor/pid/kp"] = errors.New("controller is armed")
	obs := &countingObserver{}
	e := NewEngineWithObserver(p, obs)
	res := set(t, e, params.Parameter{Name: "motor/pid/kp", Value: params.DoubleValue(2)})
	if res[0].Successful || res[0].Reason != "controller is armed" {
		t.Fatalf("got %+v", res)
	}
	if len(obs.rejected) != 1 || obs.rejected[0] != "motor/pid/kp" {
		t.Fatalf("observer saw %v", obs.rejected)
	}
}

func TestBatchSetIsolatesFailure(t *testing.T) {
	testlog.Start(t)
	for k := 0; k < 4; k++ {
		p := fixture()
		e := NewEngine(p)
		batch := []params.Parameter{
			{Name: "motor/rate", Value: params.IntValue(20)},
			{Name: "motor/gain", Value: params.DoubleValue(0.25)},
			{Name: "motor/pid/kp", Value: params.DoubleValue(3)},
			{Name: "label", Value: params.StringValue("x")},
		}
		batch[k].Value = params.BoolValue(true)
		if batch[k].Name == "label" {
			batch[k].Name = "nope"
		}
		res := set(t, e, batch...)
		if len(res) != len(batch) {
			t.Fatalf("k=%d: %d results", k, len(res))
		}
		for i, r := range res {
			if (i == k) == r.Successful {
				t.Fatalf("k=%d i=%d: %+v", k, i, r)
			}
		}
		if p.sets != len(batch)-1 {
			t.Fatalf("k=%d: sets=%d", k, p.sets)
		}
	}
}

func TestUnresolvedNamesDoNotAbortBatch(t *testing.T) {
	testlog.Start(t)
	e := NewEngine(fixture())
	names := []string{"motor/rate", "ghost", "label"}

	vals := call(t, e, rcl.KindGetParameters, &rcl.NamesRequest{Names: names}, 1024).(*rcl.GetParametersReply)
	if len(vals.Values) != 3 || vals.Values[1].Type != params.TypeNotSet || vals.Values[2].String != "dev" {
		t.Fatalf("get: %#v", vals.Values)
	}
	types := call(t, e, rcl.KindGetParameterTypes, &rcl.NamesRequest{Names: names}, 64).(*rcl.GetParameterTypesReply)
	if len(types.Types) != 3 || types.Types[1] != params.TypeNotSet || types.Types[2] != params.TypeString {
		t.Fatalf("types: %v", types.Types)
	}
	descs := call(t, e, rcl.KindDescribeParameters, &rcl.NamesRequest{Names: names}, 1024).(*rcl.DescribeParametersReply)
	if len(descs.Descriptors) != 3 {
		t.Fatalf("describe: %d", len(descs.Descriptors))
	}
	if d := descs.Descriptors[1]; d.Name != "ghost" || d.Type != params.TypeNotSet || d.IntRange != nil {
		t.Fatalf("unresolved descriptor: %+v", d)
	}
	if d := descs.Descriptors[0]; d.IntRange == nil || d.IntRange.Step != 5 {
		t.Fatalf("resolved descriptor: %+v", d)
	}
}

func TestListOneLevel(t *testing.T) {
	testlog.Start(t)
	e := NewEngine(fixture())
	out := call(t, e, rcl.KindListParameters, &rcl.ListParametersRequest{Prefixes: []string{"motor"}, Depth: 1}, 1024).(*rcl.ListParametersReply)
	sort.Strings(out.Names)
	want := []string{"motor/gain", "motor/rate", "motor/serial"}
	if strings.Join(out.Names, ",") != strings.Join(want, ",") {
		t.Fatalf("names=%v want %v", out.Names, want)
	}
	if len(out.Prefixes) != 1 || out.Prefixes[0] != "motor/pid" {
		t.Fatalf("prefixes=%v", out.Prefixes)
	}

	root := call(t, e, rcl.KindListParameters, &rcl.ListParametersRequest{}, 1024).(*rcl.ListParametersReply)
	sort.Strings(root.Names)
	if strings.Join(root.Names, ",") != "label,weights" {
		t.Fatalf("root names=%v", root.Names)
	}
}

func TestListTruncatesIntoSmallBuffer(t *testing.T) {
	testlog.Start(t)
	p := newStub()
	for i := 0; i < 40; i++ {
		p.declare(params.Descriptor{Name: fmt.Sprintf("dev/p%02d", i), Type: params.TypeBool}, params.BoolValue(true))
	}
	obs := &countingObserver{}
	e := NewEngineWithObserver(p, obs)

	req, err := rcl.Marshal(&rcl.ListParametersRequest{Prefixes: []string{"dev"}}, nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reply := make([]byte, 100)
	n, err := e.Handle(rcl.KindListParameters, req, reply)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var out rcl.ListParametersReply
	if err := rcl.Unmarshal(reply[:n], &out); err != nil {
		t.Fatalf("truncated reply must still decode: %v", err)
	}
	if len(out.Names) == 0 || len(out.Names) >= 40 {
		t.Fatalf("emitted %d names", len(out.Names))
	}
	for _, name := range out.Names {
		if len(name) != len("dev/p00") || !strings.HasPrefix(name, "dev/p") {
			t.Fatalf("incomplete name %q", name)
		}
	}
	if obs.truncated == 0 {
		t.Fatalf("truncation not reported")
	}
	if n > len(reply) {
		t.Fatalf("wrote past buffer")
	}
}

func TestGetTruncatesAtElementBoundary(t *testing.T) {
	testlog.Start(t)
	p := newStub()
	p.declare(params.Descriptor{Name: "a", Type: params.TypeString}, params.StringValue(strings.Repeat("x", 40)))
	e := NewEngine(p)
	req, _ := rcl.Marshal(&rcl.NamesRequest{Names: []string{"a", "a", "a"}}, nil)
	reply := make([]byte, 150)
	n, err := e.Handle(rcl.KindGetParameters, req, reply)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var out rcl.GetParametersReply
	if err := rcl.Unmarshal(reply[:n], &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Values) != 1 {
		t.Fatalf("values=%d", len(out.Values))
	}
}

func TestTooManyEntriesFailsBeforeProvider(t *testing.T) {
	testlog.Start(t)
	p := fixture()
	e := NewEngine(p)
	names := make([]string, params.MaxRequestStrings+1)
	for i := range names {
		names[i] = "motor/rate"
	}
	for _, kind := range []rcl.Kind{rcl.KindGetParameters, rcl.KindGetParameterTypes, rcl.KindDescribeParameters} {
		req, _ := rcl.Marshal(&rcl.NamesRequest{Names: names}, nil)
		if _, err := e.Handle(kind, req, make([]byte, 4096)); !errors.Is(err, ErrTooManyEntries) {
			t.Fatalf("%s: expected ErrTooManyEntries, got %v", kind, err)
		}
	}
	pairs := make([]params.Parameter, params.MaxRequestStrings+1)
	for i := range pairs {
		pairs[i] = params.Parameter{Name: "motor/rate", Value: params.IntValue(5)}
	}
	req, _ := rcl.Marshal(&rcl.SetParametersRequest{Parameters: pairs}, nil)
	if _, err := e.Handle(rcl.KindSetParameters, req, make([]byte, 4096)); !errors.Is(err, ErrTooManyEntries) {
		t.Fatalf("set: expected ErrTooManyEntries, got %v", err)
	}
	if p.resolves != 0 || p.sets != 0 {
		t.Fatalf("provider touched: resolves=%d sets=%d", p.resolves, p.sets)
	}
	// exactly at the cap is fine
	req, _ = rcl.Marshal(&rcl.NamesRequest{Names: names[:params.MaxRequestStrings]}, nil)
	if _, err := e.Handle(rcl.KindGetParameterTypes, req, make([]byte, 4096)); err != nil {
		t.Fatalf("at cap: %v", err)
	}
}

func TestProtocolErrors(t *testing.T) {
	testlog.Start(t)
	p := fixture()
	e := NewEngine(p)
	good, _ := rcl.Marshal(&rcl.NamesRequest{Names: []string{"motor/rate"}}, nil)

	if _, err := e.Handle(rcl.KindUnknown, good, make([]byte, 64)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unknown kind: %v", err)
	}
	if _, err := e.Handle(rcl.KindGetParameters, good, nil); !errors.Is(err, ErrReplyTooSmall) {
		t.Fatalf("nil reply: %v", err)
	}
	if _, err := e.Handle(rcl.KindGetParameters, good[:len(good)-2], make([]byte, 64)); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("truncated: %v", err)
	}
	bad := append([]byte(nil), good...)
	bad[1] = 0x07
	if _, err := e.Handle(rcl.KindGetParameters, bad, make([]byte, 64)); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("bad header: %v", err)
	}

	set, _ := rcl.Marshal(&rcl.SetParametersRequest{Parameters: []params.Parameter{{Name: "motor/rate", Value: params.IntValue(5)}}}, nil)
	set[cdr.HeaderLen+4+4+len("motor/rate")+1] = 42 // value tag
	if _, err := e.Handle(rcl.KindSetParameters, set, make([]byte, 64)); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("bad tag: %v", err)
	}
	if p.sets != 0 {
		t.Fatalf("setter reached on malformed request")
	}
}

func TestSetReplyCapacity(t *testing.T) {
	testlog.Start(t)
	p := fixture()
	e := NewEngine(p)
	pairs := []params.Parameter{
		{Name: "missing/one", Value: params.IntValue(1)},
		{Name: "missing/two", Value: params.IntValue(1)},
		{Name: "motor/rate", Value: params.IntValue(15)},
	}
	req, _ := rcl.Marshal(&rcl.SetParametersRequest{Parameters: pairs}, nil)

	if _, err := e.Handle(rcl.KindSetParameters, req, make([]byte, cdr.HeaderLen+4+2*minSetResultSize)); !errors.Is(err, ErrReplyTooSmall) {
		t.Fatalf("expected ErrReplyTooSmall, got %v", err)
	}
	if p.resolves != 0 {
		t.Fatalf("provider consulted before capacity check")
	}

	// room for every result but not every reason
	reply := make([]byte, cdr.HeaderLen+4+3*minSetResultSize+4)
	n, err := e.Handle(rcl.KindSetParameters, req, reply)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var out rcl.SetParametersReply
	if err := rcl.Unmarshal(reply[:n], &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Results) != 3 || out.Results[0].Successful || out.Results[1].Successful || !out.Results[2].Successful {
		t.Fatalf("results=%+v", out.Results)
	}
	if p.sets != 1 {
		t.Fatalf("sets=%d", p.sets)
	}
}

func TestDeferredValueStreamsIntoReply(t *testing.T) {
	testlog.Start(t)
	p := newStub()
	calls := 0
	p.declare(params.Descriptor{Name: "samples", Type: params.TypeDoubleArray},
		params.DeferredValue(params.TypeDoubleArray, 4, params.ElementWriterFunc(func(w *cdr.Writer, n uint32) error {
			calls++
			return w.WriteFloat64(float64(n) / 2)
		})))
	e := NewEngine(p)
	out := call(t, e, rcl.KindGetParameters, &rcl.NamesRequest{Names: []string{"samples"}}, 256).(*rcl.GetParametersReply)
	got := out.Values[0].Doubles
	if len(got) != 4 || got[3] != 1.5 || calls != 4 {
		t.Fatalf("doubles=%v calls=%d", got, calls)
	}
}
