package contentbase

import (
	"hash/fnv"
	"sync"
)

// StripedLocks maps keys onto a fixed set of RWMutexes by FNV-1a hash.
// Same key, same stripe; unrelated keys rarely contend. Used by the
// filesystem backend to make check-and-write atomic within one process.
type StripedLocks struct {
	stripes []sync.RWMutex
	count   uint32
}

// NewStripedLocks creates stripeCount stripes (32 if stripeCount <= 0)
func NewStripedLocks(stripeCount int) *StripedLocks {
	if stripeCount <= 0 {
		stripeCount = 32
	}
	return &StripedLocks{
		stripes: make([]sync.RWMutex, stripeCount),
		count:   uint32(stripeCount),
	}
}

// Lock takes the key's stripe exclusively and returns its unlock func
func (sl *StripedLocks) Lock(key string) func() {
	idx := sl.stripeIndex(key)
	sl.stripes[idx].Lock()
	return sl.stripes[idx].Unlock
}

// RLock takes the key's stripe shared and returns its unlock func
func (sl *StripedLocks) RLock(key string) func() {
	idx := sl.stripeIndex(key)
	sl.stripes[idx].RLock()
	return sl.stripes[idx].RUnlock
}

func (sl *StripedLocks) stripeIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % sl.count
}
