package props

// PatchOutcome is the per-property result of an atomic PROPPATCH batch.
type PatchOutcome int

const (
	// OutcomeOK means the operation was applied.
	OutcomeOK PatchOutcome = iota
	// OutcomeForbidden means the property is protected and cannot be set.
	OutcomeForbidden
	// OutcomeFailedDependency means the property itself was fine, but
	// another operation in the same batch failed, aborting the whole
	// transaction (RFC 4918 §9.2, "all-or-nothing").
	OutcomeFailedDependency
	// OutcomeDuplicate means the same property name appeared more than
	// once in the batch, which spec.md §3 forbids.
	OutcomeDuplicate
	// OutcomeUnprocessable means a Set operation's xsi:type-declared
	// value did not match that type's lexical form (RFC 4918 §9.2 / RFC
	// 4316), per spec.md §4.4.
	OutcomeUnprocessable
)

// ExecutePropPatch validates and atomically applies ops against path's
// property store, per spec.md §4.4's all-or-nothing semantics: a single
// invalid operation fails the whole batch, and every other operation in
// the batch is reported as OutcomeFailedDependency.
func ExecutePropPatch(store Store, path string, ops []PatchOp) (map[QName]PatchOutcome, error) {
	outcomes := make(map[QName]PatchOutcome, len(ops))
	seen := make(map[QName]bool, len(ops))
	failed := false

	for _, op := range ops {
		if seen[op.Name] {
			outcomes[op.Name] = OutcomeDuplicate
			failed = true
			continue
		}
		seen[op.Name] = true
		if op.Op == OpSet && IsProtected(op.Name) {
			outcomes[op.Name] = OutcomeForbidden
			failed = true
			continue
		}
		if op.Op == OpSet && op.ParseErr != nil {
			outcomes[op.Name] = OutcomeUnprocessable
			failed = true
			continue
		}
		outcomes[op.Name] = OutcomeOK
	}

	if failed {
		for name, outcome := range outcomes {
			if outcome == OutcomeOK {
				outcomes[name] = OutcomeFailedDependency
			}
		}
		return outcomes, nil
	}

	if err := store.Patch(path, ops); err != nil {
		return nil, err
	}
	return outcomes, nil
}
