package ledger

import "sync"

// accountLocks serializes writers per account. Two concurrent deposits on
// the same account must both be reflected, so every mutating path takes the
// account's lock before reading balances.
type accountLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for an account and returns the unlock function.
func (l *accountLocks) Lock(accountID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
