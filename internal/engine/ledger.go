package engine

// ledger records per-action, per-owner confirmation flags.
//
// An absent entry means "not confirmed". Entries are only created for
// actions present in the store (I1) and owners present in the registry (I2);
// both are checked before any mutation, so a rejected call changes nothing.
//
// Not safe for concurrent use; the Engine serializes access.
type ledger struct {
	registry *Registry
	actions  *actionStore
	flags    map[ActionID]map[OwnerID]bool
}

func newLedger(registry *Registry, actions *actionStore) *ledger {
	return &ledger{
		registry: registry,
		actions:  actions,
		flags:    make(map[ActionID]map[OwnerID]bool),
	}
}

// check validates the preconditions shared by confirm and revoke.
// Ownership is checked first so that non-owners learn nothing about
// which action IDs exist.
func (l *ledger) check(id ActionID, owner OwnerID) error {
	if !l.registry.IsOwner(owner) {
		return newUnauthorized(id, owner)
	}
	if !l.actions.exists(id) {
		return newUnknownAction(id)
	}
	return nil
}

// confirm sets owner's flag for id. Fails with ErrCodeAlreadyConfirmed if
// the flag is already set.
func (l *ledger) confirm(id ActionID, owner OwnerID) error {
	if err := l.check(id, owner); err != nil {
		return err
	}
	if l.isConfirmedBy(id, owner) {
		return newAlreadyConfirmed(id, owner)
	}

	m, ok := l.flags[id]
	if !ok {
		m = make(map[OwnerID]bool, l.registry.Len())
		l.flags[id] = m
	}
	m[owner] = true
	return nil
}

// revoke clears owner's flag for id. Fails with ErrCodeNotConfirmed if the
// flag is not set.
func (l *ledger) revoke(id ActionID, owner OwnerID) error {
	if err := l.check(id, owner); err != nil {
		return err
	}
	if !l.isConfirmedBy(id, owner) {
		return newNotConfirmed(id, owner)
	}
	l.flags[id][owner] = false
	return nil
}

func (l *ledger) isConfirmedBy(id ActionID, owner OwnerID) bool {
	return l.flags[id][owner]
}

// count returns the number of owners currently confirming id.
func (l *ledger) count(id ActionID) int {
	n := 0
	for _, ok := range l.flags[id] {
		if ok {
			n++
		}
	}
	return n
}

// confirmers returns the confirming owners in registry order.
func (l *ledger) confirmers(id ActionID) []OwnerID {
	var out []OwnerID
	for _, o := range l.registry.owners {
		if l.flags[id][o] {
			out = append(out, o)
		}
	}
	return out
}
