package domain

// OperationKind classifies a capability's declared operation surface.
// READ operations execute automatically; ACT operations change external
// state and are gated by the per-user allowlist.
type OperationKind string

const (
	KindRead OperationKind = "read"
	KindAct  OperationKind = "act"
)

// Trigger defines one way a capability can claim an utterance.
// Pattern triggers use Go regexp syntax with named capture groups;
// Keywords triggers match case-insensitive substrings.
type Trigger struct {
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Keywords  []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Params    []string `json:"params,omitempty" yaml:"params,omitempty"`       // required capture groups; empty = all named groups
	Operation string   `json:"operation,omitempty" yaml:"operation,omitempty"` // operation this trigger maps to; empty = capability default
}

// Descriptor is the static metadata for one pluggable capability.
// Pure data: behavior lives in the registry, scorer, and executor.
type Descriptor struct {
	Name              string        `json:"name" yaml:"name"`
	Version           string        `json:"version,omitempty" yaml:"version,omitempty"`
	Author            string        `json:"author,omitempty" yaml:"author,omitempty"`
	Source            string        `json:"source,omitempty" yaml:"source,omitempty"` // builtin | user
	Description       string        `json:"description,omitempty" yaml:"description,omitempty"`
	OperationKind     OperationKind `json:"operation_kind,omitempty" yaml:"operation_kind,omitempty"`
	Triggers          []Trigger     `json:"triggers" yaml:"triggers"`
	AllowedOperations []string      `json:"allowed_operations" yaml:"allowed_operations"`
	Instructions      string        `json:"instructions,omitempty" yaml:"instructions,omitempty"`

	// Managed by the registry, never read from a capability file.
	IntegrityHash string `json:"-" yaml:"-"`
	Active        bool   `json:"-" yaml:"-"`
}

const (
	SourceBuiltin = "builtin"
	SourceUser    = "user"
)

// DefaultOperation returns the operation a trigger without an explicit
// operation maps to: the first declared allowed operation.
func (d Descriptor) DefaultOperation() string {
	if len(d.AllowedOperations) == 0 {
		return ""
	}
	return d.AllowedOperations[0]
}

// Declares reports whether op is in the capability's closed operation set.
func (d Descriptor) Declares(op string) bool {
	for _, o := range d.AllowedOperations {
		if o == op {
			return true
		}
	}
	return false
}
