// Package audit implements the orchestrator's append-only audit log: a
// single writer goroutine draining a bounded channel, assigning strictly
// increasing sequence numbers at enqueue time, and persisting JSON-lines
// records to disk. Trimming only happens at startup or on an explicit
// Rotate call, never mid-run, per spec.md §4.3.4.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// QueueCapacity is the audit channel's backpressure bound.
const QueueCapacity = 1024

// Record is what callers submit; Logger stamps Sequence and Timestamp at
// enqueue time so ordering reflects submission order, not write order.
type Record struct {
	Actor       string
	Action      model.AuditAction
	Target      string
	Fingerprint string
	Success     bool
	Message     string
}

// Logger owns the audit log file and the single writer goroutine that
// drains its queue. Grounded on the donor's pkg/monitor.HTTPMonitor
// subscriber-channel pattern, here repurposed from a pub/sub fan-out to a
// durable single-writer sink plus an optional live broadcaster.
type Logger struct {
	path string

	queue  chan model.AuditEvent
	done   chan struct{}
	closed chan struct{}

	// seqMu guards seq and orders it with the enqueue below, so two
	// concurrent Record calls can never enqueue out of sequence order.
	seqMu sync.Mutex
	seq   uint64

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer

	broadcaster *Broadcaster
}

// NewLogger opens (or creates) path for append and starts the writer
// goroutine. lastSeq should be the highest sequence number already on
// disk (0 if the file is new or was just rotated), so sequence numbers
// stay gap-free and strictly increasing across restarts.
func NewLogger(path string, lastSeq uint64, broadcaster *Broadcaster) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	l := &Logger{
		path:        path,
		queue:       make(chan model.AuditEvent, QueueCapacity),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
		file:        f,
		w:           bufio.NewWriter(f),
		broadcaster: broadcaster,
		seq:         lastSeq,
	}

	go l.run()
	return l, nil
}

// Record enqueues a new audit event, blocking if the queue is full
// (backpressure rather than silent drop, since audit completeness is a
// correctness property). Sequence assignment and the channel send happen
// under the same lock, so two concurrent callers can never have their
// events land on the queue in an order that disagrees with their
// sequence numbers.
func (l *Logger) Record(r Record) model.AuditEvent {
	l.seqMu.Lock()
	defer l.seqMu.Unlock()

	l.seq++
	ev := model.AuditEvent{
		Sequence:    l.seq,
		Timestamp:   time.Now(),
		Actor:       r.Actor,
		Action:      r.Action,
		Target:      r.Target,
		Fingerprint: r.Fingerprint,
		Success:     r.Success,
		Message:     r.Message,
	}
	select {
	case l.queue <- ev:
	case <-l.done:
	}
	return ev
}

func (l *Logger) run() {
	defer close(l.closed)
	for {
		select {
		case ev := <-l.queue:
			l.write(ev)
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Logger) drain() {
	for {
		select {
		case ev := <-l.queue:
			l.write(ev)
		default:
			l.mu.Lock()
			_ = l.w.Flush()
			l.mu.Unlock()
			return
		}
	}
}

func (l *Logger) write(ev model.AuditEvent) {
	l.mu.Lock()
	data, err := json.Marshal(ev)
	if err == nil {
		l.w.Write(data)
		l.w.WriteByte('\n')
		_ = l.w.Flush()
	}
	l.mu.Unlock()

	if l.broadcaster != nil {
		l.broadcaster.Publish(ev)
	}
}

// Close stops the writer goroutine, flushing any queued events first.
func (l *Logger) Close() error {
	close(l.done)
	<-l.closed
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
