package sticky

import "sync"

// channelLocks serialises engine operations per channel id. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*channelLock
}

type channelLock struct {
	mu   sync.Mutex
	refs int
}

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[string]*channelLock)}
}

// lock blocks until channelID is free and returns its unlock func.
func (l *channelLocks) lock(channelID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[channelID]
	if !ok {
		cl = &channelLock{}
		l.locks[channelID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, channelID)
		}
		l.mu.Unlock()
	}
}

func (l *channelLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
