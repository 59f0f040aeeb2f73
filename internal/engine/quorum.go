package engine

// thresholdMet reports whether at least registry.Threshold() owners have
// confirmed id.
//
// Owners are scanned in registration order and the scan stops the moment
// the running count reaches the threshold. Evaluation cost is therefore
// bounded by the number of owners checked until the threshold is reached,
// at most len(owners). The result depends only on the set of confirmations,
// never on the order in which they were given.
func thresholdMet(id ActionID, l *ledger, r *Registry) bool {
	count := 0
	for _, owner := range r.owners {
		if l.isConfirmedBy(id, owner) {
			count++
		}
		if count == r.threshold {
			return true
		}
	}
	return false
}
