package engine

import (
	"golang.org/x/text/unicode/norm"
)

// OwnerID identifies a registered principal.
type OwnerID string

// Registry is the immutable set of owners plus the approval threshold.
//
// It is established once at construction and never mutated afterwards:
// owner rotation and threshold changes are not supported.
//
// Thread-safety: Registry is read-only after New and safe for concurrent use.
type Registry struct {
	owners    []OwnerID // registration order; quorum scans follow it
	index     map[OwnerID]int
	threshold int
}

// NewRegistry validates and builds a registry.
//
// Owner identifiers are NFC-normalized before comparison so that two
// encodings of the same visible name cannot register twice.
//
// Fails with ErrCodeInvalidConfiguration if owners is empty, contains an
// empty or duplicate identifier, or threshold is outside [1, len(owners)].
func NewRegistry(owners []OwnerID, threshold int) (*Registry, error) {
	if len(owners) == 0 {
		return nil, newInvalidConfiguration("owner list is empty")
	}

	r := &Registry{
		owners:    make([]OwnerID, 0, len(owners)),
		index:     make(map[OwnerID]int, len(owners)),
		threshold: threshold,
	}
	for i, o := range owners {
		id := normalizeOwner(o)
		if id == "" {
			return nil, newInvalidConfiguration("owners[%d] is empty", i)
		}
		if _, dup := r.index[id]; dup {
			return nil, newInvalidConfiguration("duplicate owner %q", id)
		}
		r.index[id] = len(r.owners)
		r.owners = append(r.owners, id)
	}

	if threshold < 1 || threshold > len(r.owners) {
		return nil, newInvalidConfiguration("threshold %d outside [1, %d]", threshold, len(r.owners))
	}

	return r, nil
}

// IsOwner reports whether id is a registered owner.
func (r *Registry) IsOwner(id OwnerID) bool {
	_, ok := r.index[normalizeOwner(id)]
	return ok
}

// Threshold returns the number of confirmations required to execute.
func (r *Registry) Threshold() int {
	return r.threshold
}

// Owners returns a copy of the owners in registration order.
func (r *Registry) Owners() []OwnerID {
	out := make([]OwnerID, len(r.owners))
	copy(out, r.owners)
	return out
}

// Len returns the number of registered owners.
func (r *Registry) Len() int {
	return len(r.owners)
}

func normalizeOwner(id OwnerID) OwnerID {
	return OwnerID(norm.NFC.String(string(id)))
}
