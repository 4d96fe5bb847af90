package playlist

import "sync"

// KeySet is the two-slot current/next cursor over queued content.
// Slide promotes next to current and advances next by one, so Current()+1 == Next() always holds.
type KeySet struct {
	mu     sync.RWMutex
	window [2]int64
}

// NewKeySet starts the cursor at current=0, next=1.
func NewKeySet() *KeySet {
	return &KeySet{window: [2]int64{0, 1}}
}

// Slide atomically shifts the window forward by one slot.
func (k *KeySet) Slide() (current, next int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.window[0] = k.window[1]
	k.window[1]++
	return k.window[0], k.window[1]
}

// Current returns the on-air slot.
func (k *KeySet) Current() int64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.window[0]
}

// Next returns the cued slot.
func (k *KeySet) Next() int64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.window[1]
}

// Pair returns both slots from one consistent read.
func (k *KeySet) Pair() (current, next int64) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.window[0], k.window[1]
}
