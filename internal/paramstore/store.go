// Package paramstore is an in-memory params.Provider: a flat map of
// declared parameters addressed by '/'-separated names, seeded from TOML
// declaration files.
package paramstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/edgeparams/internal/params"
)

var (
	ErrAlreadyDeclared = errors.New("paramstore: parameter already declared")
	ErrDeferredValue   = errors.New("deferred values cannot be stored")
)

// SetHook may veto a value after descriptor checks pass. A non-nil error
// is reported to the caller as the rejection reason.
type SetHook func(name string, v params.Value) error

type entry struct {
	name  string
	desc  params.Descriptor
	value params.Value
	rev   uint64
}

// Store serializes all access with one RWMutex. Stored array values are
// never mutated in place, so values returned by Get stay valid.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	hook    SetHook
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func normalize(name string) string {
	return strings.Trim(strings.TrimSpace(name), params.Separator)
}

// OnSet installs hook, replacing any previous one.
func (s *Store) OnSet(hook SetHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// Declare adds a parameter. initial may be the zero Value for "not set";
// otherwise it must match the declared type (unless dynamic) and range.
func (s *Store) Declare(desc params.Descriptor, initial params.Value) error {
	desc.Name = normalize(desc.Name)
	if err := checkDeclaration(desc, initial); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[desc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeclared, desc.Name)
	}
	s.entries[desc.Name] = &entry{name: desc.Name, desc: desc, value: initial.Clone()}
	return nil
}

func checkDeclaration(desc params.Descriptor, initial params.Value) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if initial.IsDeferred() {
		return fmt.Errorf("%s: %w", desc.Name, ErrDeferredValue)
	}
	if err := initial.Validate(); err != nil {
		return fmt.Errorf("%s: %w", desc.Name, err)
	}
	if initial.Type == params.TypeNotSet {
		return nil
	}
	if !desc.DynamicTyping && initial.Type != desc.Type {
		return fmt.Errorf("%s: initial %s: %w", desc.Name, initial.Type, params.ErrTypeMismatch)
	}
	if err := params.CheckRange(desc, initial); err != nil {
		return fmt.Errorf("%s: initial value: %w", desc.Name, err)
	}
	return nil
}

// Undeclare removes name and reports whether it existed.
func (s *Store) Undeclare(name string) bool {
	name = normalize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	return ok
}

// Len is the number of declared parameters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Names returns every declared name, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Lookup returns the descriptor and value of name.
func (s *Store) Lookup(name string) (params.Descriptor, params.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[normalize(name)]
	if !ok {
		return params.Descriptor{}, params.Value{}, false
	}
	return e.desc, e.value, true
}

func (s *Store) Resolve(name string) (params.Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[normalize(name)]
	if !ok {
		return nil, false
	}
	return e, true
}

func (s *Store) Describe(ref params.Ref) params.Descriptor {
	e := ref.(*entry)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.desc
}

func (s *Store) Get(ref params.Ref) params.Value {
	e := ref.(*entry)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.value
}

func (s *Store) Type(ref params.Ref) params.Type {
	e := ref.(*entry)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.value.Type
}

// Set stores a copy of v. Descriptor checks are the caller's job; Set only
// refuses values it cannot own and anything the OnSet hook vetoes. The
// declared type is kept; Type reports the stored value's tag.
func (s *Store) Set(ref params.Ref, v params.Value) error {
	return s.SetChecked(ref, v, nil)
}

// SetChecked runs check against the current descriptor and stores v only
// if the descriptor it passed is still in place when the value lands. A
// reload that replaces the descriptor while the OnSet hook runs forces a
// second check.
func (s *Store) SetChecked(ref params.Ref, v params.Value, check func(params.Descriptor, params.Value) error) error {
	e := ref.(*entry)
	if v.IsDeferred() {
		return ErrDeferredValue
	}
	s.mu.RLock()
	hook := s.hook
	desc, rev := e.desc, e.rev
	s.mu.RUnlock()
	if check != nil {
		if err := check(desc, v); err != nil {
			return err
		}
	}
	if hook != nil {
		if err := hook(e.name, v); err != nil {
			return err
		}
	}
	v = v.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if check != nil && e.rev != rev {
		if err := check(e.desc, v); err != nil {
			return err
		}
	}
	e.value = v
	return nil
}

// ListParameters emits the parameters directly under prefix, sorted.
func (s *Store) ListParameters(prefix string, emit func(string) bool) int {
	return emitAll(s.children(prefix, false), emit)
}

// ListPrefixes emits the child prefixes directly under prefix, sorted.
func (s *Store) ListPrefixes(prefix string, emit func(string) bool) int {
	return emitAll(s.children(prefix, true), emit)
}

func emitAll(items []string, emit func(string) bool) int {
	for _, item := range items {
		if !emit(item) {
			break
		}
	}
	return len(items)
}

// children snapshots one level below prefix so emit runs without the lock.
func (s *Store) children(prefix string, prefixes bool) []string {
	prefix = normalize(prefix)
	s.mu.RLock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for name := range s.entries {
		rest := name
		if prefix != "" {
			if !strings.HasPrefix(name, prefix+params.Separator) {
				continue
			}
			rest = name[len(prefix)+1:]
		}
		i := strings.Index(rest, params.Separator)
		var item string
		switch {
		case i < 0 && !prefixes:
			item = name
		case i >= 0 && prefixes:
			item = name[:len(name)-len(rest)+i]
		default:
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

var _ params.Provider = (*Store)(nil)
