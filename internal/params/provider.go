package params

// Ref is an opaque handle returned by Provider.Resolve and handed back to
// the other Provider operations within the same request.
type Ref any

// Provider is the capability set over the externally owned parameter tree.
// Implementations must return promptly (no blocking I/O) and serialize
// concurrent access themselves; the request engine takes no locks.
type Provider interface {
	// Resolve maps a full parameter name to a reference.
	Resolve(name string) (Ref, bool)
	// Describe returns the descriptor for ref.
	Describe(ref Ref) Descriptor
	// Get returns the current value for ref.
	Get(ref Ref) Value
	// Type returns the current type tag for ref.
	Type(ref Ref) Type
	// Set stores v. A non-nil error rejects the value; its text is
	// reported to the caller verbatim.
	Set(ref Ref, v Value) error
	// ListParameters calls emit for each parameter exactly one level below
	// prefix and returns how many matched. emit returning false asks the
	// provider to stop early.
	ListParameters(prefix string, emit func(name string) bool) int
	// ListPrefixes calls emit for each child prefix exactly one level below
	// prefix and returns how many matched.
	ListPrefixes(prefix string, emit func(prefix string) bool) int
}

// CheckedSetter is implemented by providers whose descriptors can change
// while a request runs. SetChecked must run check against the descriptor
// in force when v is stored, so a concurrent change (a reload flipping
// read-only, say) cannot be bypassed.
type CheckedSetter interface {
	SetChecked(ref Ref, v Value, check func(Descriptor, Value) error) error
}
