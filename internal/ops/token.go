package ops

import "sync"

// CancelToken is a cooperative, write-once cancellation flag shared by
// reference into every piece of work an operation spawns. Workers poll it
// between units of work; nothing ever blocks on it.
type CancelToken struct {
	mu        sync.RWMutex
	cancelled bool
	reason    string
}

func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// RequestCancel flips the flag. The first call wins; later calls (and later
// reasons) are ignored.
func (t *CancelToken) RequestCancel(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	t.reason = reason
}

func (t *CancelToken) Cancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// Reason returns the reason passed to the first RequestCancel, or "".
func (t *CancelToken) Reason() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason
}
