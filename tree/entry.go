// Package tree implements the Resource Tree: a hierarchical, path-addressed
// namespace of Entries. An Entry starts life as a Namespace (interior) or
// Placeholder (referenced leaf) and may be promoted in place to Input,
// Output, or Observation without losing identity — outstanding references
// to the Entry survive promotion, matching the role-variant-payload model.
//
// The tree is mutated only by the dispatch context (see the resource
// package's push pipeline); it carries no internal locking, consistent
// with the single-threaded cooperative scheduling model the engine runs
// under.
package tree

import (
	"fmt"
	"strings"

	"github.com/c360/datahub/pkg/buffer"
	"github.com/c360/datahub/sample"
)

// Role is the tag an Entry carries describing what kind of resource, if
// any, it is.
type Role int

const (
	RoleNamespace Role = iota
	RolePlaceholder
	RoleInput
	RoleOutput
	RoleObservation
)

func (r Role) String() string {
	switch r {
	case RoleNamespace:
		return "namespace"
	case RolePlaceholder:
		return "placeholder"
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleObservation:
		return "observation"
	default:
		return "unknown"
	}
}

// IsResource reports whether the role carries data (Input, Output, or
// Observation), as opposed to a structural Namespace or an unpromoted
// Placeholder.
func (r Role) IsResource() bool {
	return r == RoleInput || r == RoleOutput || r == RoleObservation
}

// Entry is one node of the resource tree. Its identity (the pointer) is
// stable across role promotion: getInput/getOutput replace the role-variant
// fields in place rather than allocating a new node.
type Entry struct {
	name     string
	parent   *Entry
	children map[string]*Entry
	role     Role

	// Resource state, meaningful once role.IsResource() is true.
	dataType     sample.Kind
	units        string
	currentValue *sample.Sample
	defaultValue *sample.Sample
	defaultSet   bool
	mandatory    bool

	handlers      []*pushHandler
	dispatchDepth int

	observers []*Entry // observations deriving from this entry

	buf          buffer.Buffer[sample.Sample] // Observation history buffer, if configured
	bufWindowSec float64
}

// NewRoot creates the root Entry. The root has no parent, an empty name,
// and role Namespace.
func NewRoot() *Entry {
	return &Entry{
		name:     "",
		children: make(map[string]*Entry),
		role:     RoleNamespace,
	}
}

// Name returns the Entry's path segment. The root's name is "".
func (e *Entry) Name() string { return e.name }

// Parent returns the Entry's parent, or nil for the root.
func (e *Entry) Parent() *Entry { return e.parent }

// Role returns the Entry's current role.
func (e *Entry) Role() Role { return e.role }

// DataType returns the Entry's current data type. For Observations this
// tracks the kind of the most recent push; for Inputs/Outputs it is fixed
// at creation.
func (e *Entry) DataType() sample.Kind { return e.dataType }

// Units returns the Entry's configured units string.
func (e *Entry) Units() string { return e.units }

// SetUnitsIfEmpty assigns units to e if it has none yet, leaving an
// existing units string untouched. It is used to apply an administrative
// default to a resource the caller didn't specify one for.
func (e *Entry) SetUnitsIfEmpty(units string) {
	if e.units == "" {
		e.units = units
	}
}

// Mandatory reports whether an Output is mandatory (the default) or has
// been marked optional.
func (e *Entry) Mandatory() bool { return e.mandatory }

// Path returns the Entry's absolute path from the root, "/" for the root
// itself.
func (e *Entry) Path() string {
	if e.parent == nil {
		return "/"
	}
	segments := []string{e.name}
	for p := e.parent; p.parent != nil; p = p.parent {
		segments = append([]string{p.name}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}

// Children returns a snapshot of the Entry's children. The order is not
// defined and may differ between calls.
func (e *Entry) Children() []*Entry {
	out := make([]*Entry, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, c)
	}
	return out
}

// splitPath breaks a relative or absolute path into non-empty segments.
// A malformed path (containing an empty interior segment, i.e. "//") is
// rejected.
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segments := strings.Split(trimmed, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("tree: malformed path %q", path)
		}
	}
	return segments, nil
}

// IsAbsolute reports whether path begins with "/".
func IsAbsolute(path string) bool {
	return strings.HasPrefix(path, "/")
}

// FindEntry resolves path relative to base, returning the Entry at that
// path or ok=false if any segment along the way does not exist. It never
// creates nodes. A malformed path resolves to not-found rather than an
// error, matching the op table in the tree design.
func FindEntry(base *Entry, path string) (*Entry, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	cur := base
	for _, seg := range segments {
		next, ok := cur.children[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// FindAtAbsolute resolves an absolute path from the tree containing base,
// returning the Entry or ok=false. A non-absolute path is rejected as
// not-found.
func FindAtAbsolute(base *Entry, path string) (*Entry, bool) {
	if !IsAbsolute(path) {
		return nil, false
	}
	root := base
	for root.parent != nil {
		root = root.parent
	}
	return FindEntry(root, path)
}

// GetEntry resolves path relative to base, materialising any missing
// intermediate nodes as Namespaces and the leaf as a Placeholder if it did
// not already exist. Existing nodes are returned unchanged.
func GetEntry(base *Entry, path string) (*Entry, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, fmt.Errorf("tree.GetEntry: %w", err)
	}
	cur := base
	for i, seg := range segments {
		next, ok := cur.children[seg]
		if !ok {
			next = &Entry{name: seg, parent: cur, children: make(map[string]*Entry)}
			if i == len(segments)-1 {
				next.role = RolePlaceholder
			} else {
				next.role = RoleNamespace
			}
			cur.children[seg] = next
		}
		cur = next
	}
	return cur, nil
}

// ErrDuplicate is returned by GetInput/GetOutput when an existing entry at
// the target path cannot be promoted or reconciled with the requested
// (role, dataType, units).
var ErrDuplicate = fmt.Errorf("tree: resource already exists with a different type")

// GetInput resolves or creates an Input entry at path under base, per the
// promotion rules in the role state machine: Namespace and Placeholder
// entries are promoted in place; an existing Input with matching
// (dataType, units) is an idempotent success; anything else is
// ErrDuplicate and leaves the entry unchanged.
func GetInput(base *Entry, path string, dataType sample.Kind, units string) (*Entry, error) {
	return getIO(base, path, RoleInput, dataType, units)
}

// GetOutput is the Output-role counterpart to GetInput. Outputs default to
// mandatory; use MarkOptional to relax that after creation.
func GetOutput(base *Entry, path string, dataType sample.Kind, units string) (*Entry, error) {
	return getIO(base, path, RoleOutput, dataType, units)
}

func getIO(base *Entry, path string, role Role, dataType sample.Kind, units string) (*Entry, error) {
	e, err := GetEntry(base, path)
	if err != nil {
		return nil, err
	}

	switch e.role {
	case RoleNamespace, RolePlaceholder:
		e.role = role
		e.dataType = dataType
		e.units = units
		if role == RoleOutput {
			e.mandatory = true
		}
		return e, nil
	case role:
		if e.dataType != dataType || e.units != units {
			return nil, ErrDuplicate
		}
		return e, nil
	default:
		return nil, ErrDuplicate
	}
}

// PromoteObservation promotes a Namespace or Placeholder entry to
// Observation, the administrative counterpart to GetInput/GetOutput.
// Observations are created and deleted administratively, never implicitly
// by a client push; an existing Observation is left unchanged (idempotent
// success). Any other existing role is ErrDuplicate.
func PromoteObservation(e *Entry) error {
	switch e.role {
	case RoleNamespace, RolePlaceholder:
		e.role = RoleObservation
		return nil
	case RoleObservation:
		return nil
	default:
		return ErrDuplicate
	}
}

// DeleteObservation removes an Observation entry administratively,
// discarding its buffer and handler bindings.
func DeleteObservation(e *Entry) error {
	if e.role != RoleObservation {
		return fmt.Errorf("tree.DeleteObservation: entry %q has role %s, not observation", e.Path(), e.role)
	}
	if len(e.children) > 0 {
		e.role = RoleNamespace
		e.buf = nil
		e.observers = nil
		return nil
	}
	unlink(e)
	return nil
}

// MarkOptional relaxes an Output's mandatory flag. It is a caller-contract
// violation to call this on a non-Output entry; that check belongs to the
// caller, which has the role context (the client session) to report it.
func (e *Entry) MarkOptional() {
	e.mandatory = false
}

// DeleteIO removes an Input or Output entry. If it still has children it is
// demoted to a Namespace (preserving the subtree); otherwise it is unlinked
// from its parent, along with any now-empty Namespace ancestors.
func DeleteIO(e *Entry) error {
	if e.role != RoleInput && e.role != RoleOutput {
		return fmt.Errorf("tree.DeleteIO: entry %q has role %s, not input or output", e.Path(), e.role)
	}

	if len(e.children) > 0 {
		e.role = RoleNamespace
		e.dataType = 0
		e.units = ""
		e.currentValue = nil
		e.defaultValue = nil
		e.defaultSet = false
		e.mandatory = false
		e.handlers = nil
		return nil
	}

	unlink(e)
	return nil
}

// unlink removes e from its parent and prunes any ancestor Namespace left
// with no children as a result.
func unlink(e *Entry) {
	p := e.parent
	if p == nil {
		return
	}
	delete(p.children, e.name)
	if p.role == RoleNamespace && len(p.children) == 0 && p.parent != nil {
		unlink(p)
	}
}
