package paramstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/testutil/testlog"
)

const sampleDecl = `
[[parameter]]
name = "/motor/rate"
type = "integer"
description = "control loop rate"
value = 50
[parameter.integer_range]
min = 10
max = 100
step = 10

[[parameter]]
name = "motor/gain"
type = "double"
value = 1
[parameter.float_range]
min = 0.0
max = 2.0

[[parameter]]
name = "motor/pid/kp"
type = "double[]"
value = [1.0, 2, 3.5]

[[parameter]]
name = "serial"
type = "string"
read_only = true
value = "SN-42"

[[parameter]]
name = "blob"
type = "bytes"
value = [1, 2, 255]

[[parameter]]
name = "unset"
type = "bool"
`

func loadSample(t *testing.T) *Store {
	t.Helper()
	decls, err := Parse(sampleDecl)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := New()
	if added, _ := s.Apply(decls); added != len(decls) {
		t.Fatalf("added=%d want %d", added, len(decls))
	}
	return s
}

func TestParseDeclarations(t *testing.T) {
	testlog.Start(t)
	s := loadSample(t)
	desc, v, ok := s.Lookup("motor/rate")
	if !ok {
		t.Fatalf("motor/rate missing")
	}
	if desc.IntRange == nil || desc.IntRange.Step != 10 || v.Int != 50 {
		t.Fatalf("rate desc=%+v value=%#v", desc, v)
	}
	if _, v, _ := s.Lookup("motor/gain"); v.Type != params.TypeDouble || v.Double != 1 {
		t.Fatalf("integer literal for double: %#v", v)
	}
	if _, v, _ := s.Lookup("motor/pid/kp"); len(v.Doubles) != 3 || v.Doubles[1] != 2 {
		t.Fatalf("double array: %#v", v)
	}
	if _, v, _ := s.Lookup("blob"); string(v.Bytes) != "\x01\x02\xff" {
		t.Fatalf("bytes: %#v", v)
	}
	if _, v, _ := s.Lookup("unset"); v.Type != params.TypeNotSet {
		t.Fatalf("unset: %#v", v)
	}
}

func TestParseRejectsBadDeclarations(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":    "[[parameter]]\nname = \"a\"\ntype = \"bool\"\nreadonly = true\n",
		"unknown type":   "[[parameter]]\nname = \"a\"\ntype = \"quat\"\n",
		"wrong value":    "[[parameter]]\nname = \"a\"\ntype = \"integer\"\nvalue = \"x\"\n",
		"out of range":   "[[parameter]]\nname = \"a\"\ntype = \"integer\"\nvalue = 5\n[parameter.integer_range]\nmin = 10\nmax = 20\n",
		"duplicate":      "[[parameter]]\nname = \"a\"\ntype = \"bool\"\n[[parameter]]\nname = \"/a\"\ntype = \"bool\"\n",
		"byte overflow":  "[[parameter]]\nname = \"a\"\ntype = \"bytes\"\nvalue = [256]\n",
		"empty name":     "[[parameter]]\nname = \"\"\ntype = \"bool\"\n",
		"range mismatch": "[[parameter]]\nname = \"a\"\ntype = \"string\"\n[parameter.float_range]\nmax = 1.0\n",
	}
	for label, doc := range cases {
		if _, err := Parse(doc); err == nil {
			t.Fatalf("%s: expected error", label)
		}
	}
	_, err := Parse(cases["wrong value"])
	if !errors.Is(err, ErrInvalidDeclaration) || !errors.Is(err, params.ErrTypeMismatch) {
		t.Fatalf("wrapped errors lost: %v", err)
	}
}

func TestProviderListing(t *testing.T) {
	testlog.Start(t)
	s := loadSample(t)
	collect := func(list func(string, func(string) bool) int, prefix string) []string {
		var out []string
		n := list(prefix, func(name string) bool {
			out = append(out, name)
			return true
		})
		if n != len(out) {
			t.Fatalf("count %d != emitted %d", n, len(out))
		}
		return out
	}
	if got := strings.Join(collect(s.ListParameters, "motor/"), ","); got != "motor/gain,motor/rate" {
		t.Fatalf("motor params=%s", got)
	}
	if got := strings.Join(collect(s.ListPrefixes, "motor"), ","); got != "motor/pid" {
		t.Fatalf("motor prefixes=%s", got)
	}
	if got := strings.Join(collect(s.ListParameters, ""), ","); got != "blob,serial,unset" {
		t.Fatalf("root params=%s", got)
	}
	if got := strings.Join(collect(s.ListPrefixes, "/"), ","); got != "motor" {
		t.Fatalf("root prefixes=%s", got)
	}

	stopped := 0
	total := s.ListParameters("", func(string) bool { stopped++; return false })
	if stopped != 1 || total != 3 {
		t.Fatalf("early stop: emitted=%d total=%d", stopped, total)
	}
}

func TestSetHookAndDynamicTyping(t *testing.T) {
	testlog.Start(t)
	s := New()
	if err := s.Declare(params.Descriptor{Name: "mode", Type: params.TypeString, DynamicTyping: true}, params.StringValue("auto")); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := s.Declare(params.Descriptor{Name: "mode", Type: params.TypeString}, params.Value{}); !errors.Is(err, ErrAlreadyDeclared) {
		t.Fatalf("expected ErrAlreadyDeclared, got %v", err)
	}
	ref, ok := s.Resolve("/mode")
	if !ok {
		t.Fatalf("resolve failed")
	}
	veto := errors.New("locked while moving")
	s.OnSet(func(name string, v params.Value) error {
		if v.Type == params.TypeBool {
			return veto
		}
		return nil
	})
	if err := s.Set(ref, params.BoolValue(true)); !errors.Is(err, veto) {
		t.Fatalf("hook veto: %v", err)
	}
	src := []int64{1, 2}
	if err := s.Set(ref, params.IntArrayValue(src)); err != nil {
		t.Fatalf("set: %v", err)
	}
	src[0] = 9
	if got := s.Get(ref); got.Ints[0] != 1 {
		t.Fatalf("store aliases caller slice")
	}
	if s.Describe(ref).Type != params.TypeString || s.Type(ref) != params.TypeIntegerArray {
		t.Fatalf("declared=%s current=%s", s.Describe(ref).Type, s.Type(ref))
	}
	deferred := params.DeferredValue(params.TypeIntegerArray, 1, params.ElementWriterFunc(func(w *cdr.Writer, n uint32) error {
		return w.WriteInt64(int64(n))
	}))
	if err := s.Set(ref, deferred); !errors.Is(err, ErrDeferredValue) {
		t.Fatalf("expected ErrDeferredValue, got %v", err)
	}
}

func TestApplyPreservesValues(t *testing.T) {
	testlog.Start(t)
	s := loadSample(t)
	ref, _ := s.Resolve("motor/rate")
	if err := s.Set(ref, params.IntValue(80)); err != nil {
		t.Fatalf("set: %v", err)
	}
	decls, err := Parse(`
[[parameter]]
name = "motor/rate"
type = "integer"
description = "updated"
value = 50
[parameter.integer_range]
min = 10
max = 100
step = 10

[[parameter]]
name = "motor/new"
type = "bool"
value = true
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	added, updated := s.Apply(decls)
	if added != 1 || updated != 1 {
		t.Fatalf("added=%d updated=%d", added, updated)
	}
	desc, v, _ := s.Lookup("motor/rate")
	if desc.Description != "updated" || v.Int != 80 {
		t.Fatalf("desc=%q value=%d", desc.Description, v.Int)
	}
	if _, _, ok := s.Lookup("serial"); !ok {
		t.Fatalf("reload must not undeclare")
	}

	// a narrower range resets values that no longer fit
	decls[0].Descriptor.IntRange = &params.IntegerRange{Min: 10, Max: 60, Step: 10}
	s.Apply(decls[:1])
	if _, v, _ := s.Lookup("motor/rate"); v.Int != 50 {
		t.Fatalf("value not reset: %d", v.Int)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "params.toml")
	if err := os.WriteFile(path, []byte(sampleDecl), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := New()
	if _, _, err := LoadInto(s, path); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan int, 4)
	if err := Watch(ctx, s, path, func(added, updated int, err error) {
		if err == nil {
			reloaded <- added
		}
	}); err != nil {
		t.Fatalf("watch: %v", err)
	}

	extra := sampleDecl + "\n[[parameter]]\nname = \"late\"\ntype = \"integer\"\nvalue = 1\n"
	if err := os.WriteFile(path, []byte(extra), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	select {
	case added := <-reloaded:
		if added != 1 {
			t.Fatalf("added=%d", added)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload observed")
	}
	if _, _, ok := s.Lookup("late"); !ok {
		t.Fatalf("late parameter missing after reload")
	}
}

func TestParseValueLiterals(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		typ  params.Type
		raw  string
		want params.Value
	}{
		{params.TypeInteger, "42", params.IntValue(42)},
		{params.TypeDouble, "3", params.DoubleValue(3)},
		{params.TypeBool, "true", params.BoolValue(true)},
		{params.TypeString, "hello world", params.StringValue("hello world")},
		{params.TypeString, `"quoted"`, params.StringValue("quoted")},
		{params.TypeIntegerArray, "[1, 2, 3]", params.IntArrayValue([]int64{1, 2, 3})},
		{params.TypeStringArray, `["a", "b"]`, params.StringArrayValue([]string{"a", "b"})},
	}
	for _, tc := range cases {
		got, err := ParseValue(tc.typ, tc.raw)
		if err != nil {
			t.Fatalf("%s %q: %v", tc.typ, tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s %q: got %#v want %#v", tc.typ, tc.raw, got, tc.want)
		}
	}

	if _, err := ParseValue(params.TypeInteger, "1.5"); !errors.Is(err, params.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if _, err := ParseValue(params.TypeInteger, "[1,"); !errors.Is(err, params.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}

func TestSetCheckedSeesReloadedDescriptor(t *testing.T) {
	testlog.Start(t)
	s := New()
	desc := params.Descriptor{Name: "motor/rate", Type: params.TypeInteger}
	if err := s.Declare(desc, params.IntValue(50)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	ref, _ := s.Resolve("motor/rate")

	// a reload lands between the first check and the store
	locked := desc
	locked.ReadOnly = true
	s.OnSet(func(string, params.Value) error {
		s.Apply([]Declaration{{Descriptor: locked, Value: params.IntValue(50)}})
		return nil
	})
	if err := s.SetChecked(ref, params.IntValue(20), params.CheckSet); !errors.Is(err, params.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly after reload, got %v", err)
	}
	if got := s.Get(ref); got.Int != 50 {
		t.Fatalf("value changed to %d", got.Int)
	}

	s.OnSet(nil)
	if err := s.SetChecked(ref, params.IntValue(20), params.CheckSet); !errors.Is(err, params.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestDynamicSetKeepsDeclaredRange(t *testing.T) {
	testlog.Start(t)
	s := New()
	desc := params.Descriptor{Name: "x", Type: params.TypeInteger, DynamicTyping: true, IntRange: &params.IntegerRange{Min: 0, Max: 10}}
	if err := s.Declare(desc, params.IntValue(1)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	ref, _ := s.Resolve("x")
	if err := s.SetChecked(ref, params.DoubleValue(1000), params.CheckSet); !errors.Is(err, params.ErrOutOfRange) {
		t.Fatalf("double above integer range: %v", err)
	}
	if err := s.SetChecked(ref, params.DoubleValue(5), params.CheckSet); err != nil {
		t.Fatalf("double inside range: %v", err)
	}
	if s.Describe(ref).Type != params.TypeInteger || s.Type(ref) != params.TypeDouble {
		t.Fatalf("declared=%s current=%s", s.Describe(ref).Type, s.Type(ref))
	}
	if err := s.SetChecked(ref, params.IntValue(11), params.CheckSet); !errors.Is(err, params.ErrOutOfRange) {
		t.Fatalf("integer range must still apply after a double: %v", err)
	}
}
