package lock

import "errors"

// Error kinds from spec.md §7. A lock-manager error aborts the requesting
// transaction as a side effect of being returned; callers are expected to
// unwind and call the transaction manager's Abort.
var (
	ErrLockOnShrinking            = errors.New("lock: request disallowed, transaction is shrinking")
	ErrLockSharedOnReadUncommitted = errors.New("lock: shared lock requested under read uncommitted")
	ErrIncompatibleUpgrade        = errors.New("lock: incompatible upgrade")
	ErrUpgradeConflict            = errors.New("lock: another transaction is already upgrading this queue")
	ErrNoLockHeld                 = errors.New("lock: transaction does not hold a lock on this object")
	ErrUnlockedBeforeRows         = errors.New("lock: table unlocked while row locks on it are still held")
	ErrTableLockNotPresent        = errors.New("lock: required table lock is not held")
	ErrIntentionLockOnRow         = errors.New("lock: intention lock requested at row granularity")
	ErrDeadlockVictim             = errors.New("lock: transaction aborted as deadlock victim")
	ErrTransactionAborted         = errors.New("lock: transaction already aborted")
)
