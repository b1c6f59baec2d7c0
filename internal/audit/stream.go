package audit

import (
	"sync"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// Broadcaster fans out live audit events to SSE subscribers. Grounded on
// the donor's pkg/monitor.HTTPMonitor subscriber-channel bookkeeping
// (map[chan]bool, non-blocking send, close-on-unsubscribe), narrowed to
// AuditEvent and with history dropped since /audit/stream clients can
// read the JSON-lines file directly for backlog.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan model.AuditEvent]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan model.AuditEvent]bool)}
}

// Subscribe returns a channel that receives every event Published from
// this point on. The caller must Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan model.AuditEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan model.AuditEvent, 64)
	b.subscribers[ch] = true
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan model.AuditEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish fans ev out to all current subscribers, dropping it for any
// subscriber whose buffer is full rather than blocking the writer.
func (b *Broadcaster) Publish(ev model.AuditEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
