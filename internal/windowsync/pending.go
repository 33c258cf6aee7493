package windowsync

import (
	"sync"

	"github.com/GriffinCanCode/crossframe/internal/shared/id"
)

// correlation is the per-page state owned by the top window's coordinator
type correlation struct {
	ids     id.Sequence
	pending pendingTable
}

// pendingTable maps a message id to the channel closed by its DONE
type pendingTable struct {
	mu      sync.Mutex
	entries map[int]chan struct{}
}

func (t *pendingTable) register(msgID int) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries == nil {
		t.entries = make(map[int]chan struct{})
	}
	ch := make(chan struct{})
	t.entries[msgID] = ch
	return ch
}

// resolve closes and removes the entry; unknown ids report false
func (t *pendingTable) resolve(msgID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.entries[msgID]
	if !ok {
		return false
	}
	delete(t.entries, msgID)
	close(ch)
	return true
}

// remove drops the entry without resolving it
func (t *pendingTable) remove(msgID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, msgID)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
