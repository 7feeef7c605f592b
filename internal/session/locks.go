package session

import "sync"

// SenderLocks hands out one mutex per sender so exchanges from the same sender run one at a time.
// Entries are reference counted and dropped once no goroutine holds or waits on them.
type SenderLocks struct {
	mu    sync.Mutex
	locks map[string]*senderLock
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

// NewSenderLocks returns an empty lock table.
func NewSenderLocks() *SenderLocks {
	return &SenderLocks{locks: make(map[string]*senderLock)}
}

// Lock blocks until the caller owns sender's lock and returns the matching unlock func.
func (l *SenderLocks) Lock(sender string) func() {
	l.mu.Lock()
	entry, ok := l.locks[sender]
	if !ok {
		entry = &senderLock{}
		l.locks[sender] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sender)
		}
		l.mu.Unlock()
	}
}

func (l *SenderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
