package main

import (
	"log"
	"sync"
)

// Recorder appends ActivityRecords to the store from a single background
// worker. A single FIFO queue preserves per-user ordering. Persistence is
// best-effort: storage errors are logged and never reach the requester, and
// a full queue drops the record rather than blocking the response path.
type Recorder struct {
	store Store
	queue chan ActivityRecord
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store: store,
		queue: make(chan ActivityRecord, buffer),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		if err := r.store.AppendActivity(rec); err != nil {
			log.Printf("[recorder] append failed (user %d, command %q): %v", rec.PrincipalID, rec.Command, err)
		}
	}
}

// Record enqueues one activity record. Never blocks and never fails from the
// caller's perspective.
func (r *Recorder) Record(rec ActivityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Printf("[recorder] closed, dropping record (user %d, command %q)", rec.PrincipalID, rec.Command)
		return
	}
	select {
	case r.queue <- rec:
	default:
		log.Printf("[recorder] queue full, dropping record (user %d, command %q)", rec.PrincipalID, rec.Command)
	}
}

// Close drains pending records and stops the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}
