package store

import "sync"

// keyedMutex hands out one mutex per chat session id. Lock granularity is
// the session, so appends to different sessions never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int32]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int32]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key int32) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
