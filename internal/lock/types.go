package lock

import "github.com/corekv/corekv/internal/txn"

// LockMode is re-exported from txn so callers of this package don't need to
// import txn just to name a lock mode.
type LockMode = txn.LockMode

const (
	IntentionShared          = txn.IntentionShared
	IntentionExclusive       = txn.IntentionExclusive
	Shared                   = txn.Shared
	SharedIntentionExclusive = txn.SharedIntentionExclusive
	Exclusive                = txn.Exclusive
)

func modeName(m LockMode) string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return "?"
	}
}

// compatMatrix[held][requested] per spec.md §4.6.1. Row-level locking only
// ever uses the Shared/Exclusive submatrix, which this table also covers.
var compatMatrix = [5][5]bool{
	IntentionShared:          {true, true, true, true, false},
	IntentionExclusive:       {true, true, false, false, false},
	Shared:                   {true, false, true, false, false},
	SharedIntentionExclusive: {true, false, false, false, false},
	Exclusive:                {false, false, false, false, false},
}

func compatible(held, requested LockMode) bool {
	return compatMatrix[held][requested]
}

// upgradeTargets lists the modes held may upgrade to; anything else is
// IncompatibleUpgrade.
var upgradeTargets = map[LockMode]map[LockMode]bool{
	IntentionShared:    {Shared: true, Exclusive: true, IntentionExclusive: true, SharedIntentionExclusive: true},
	Shared:             {Exclusive: true, SharedIntentionExclusive: true},
	IntentionExclusive: {Exclusive: true, SharedIntentionExclusive: true},
	SharedIntentionExclusive: {Exclusive: true},
	Exclusive:          {},
}

func canUpgrade(held, requested LockMode) bool {
	if held == requested {
		return true
	}
	return upgradeTargets[held][requested]
}
