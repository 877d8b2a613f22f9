package annosync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"slideview/internal/model"
)

// change is one queued mutation. An empty serverID means create.
type change struct {
	serverID string
	create   model.CreateAnnotationRequest
	update   model.UpdateAnnotationRequest
}

// Syncer accumulates local annotation mutations and pushes them in one
// Flush. The quiet-period debounce itself lives in the caller's event loop;
// the syncer only guarantees at-least-once delivery: entries stay queued
// across failed flushes and a newer mutation for the same key supersedes an
// older one.
type Syncer struct {
	client *Client
	setID  string

	// OnCreated maps a local draft key to the server-assigned ID so the
	// caller can switch that annotation to update mode.
	OnCreated func(localKey, serverID string)

	mu      sync.Mutex
	pending map[string]*change
}

// NewSyncer returns a syncer pushing into the given annotation set.
func NewSyncer(client *Client, setID string) *Syncer {
	return &Syncer{client: client, setID: setID, pending: map[string]*change{}}
}

// QueueCreate queues a new annotation under a caller-chosen local key.
// Re-queueing the same key before the flush replaces the payload.
func (s *Syncer) QueueCreate(localKey string, req model.CreateAnnotationRequest) {
	s.mu.Lock()
	s.pending[localKey] = &change{create: req}
	s.mu.Unlock()
}

// QueueUpdate queues a geometry/label replacement for a persisted
// annotation. Keyed by the server ID, so bursts collapse to the last write.
func (s *Syncer) QueueUpdate(serverID string, req model.UpdateAnnotationRequest) {
	s.mu.Lock()
	s.pending[serverID] = &change{serverID: serverID, update: req}
	s.mu.Unlock()
}

// Pending reports how many mutations await the next flush.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush pushes every queued mutation. Failed entries are kept for the next
// flush; the returned error joins all failures. A mutation re-queued while
// the flush is in flight survives untouched.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := make(map[string]*change, len(s.pending))
	for k, ch := range s.pending {
		batch[k] = ch
	}
	s.mu.Unlock()

	var errs []error
	for key, ch := range batch {
		var err error
		if ch.serverID == "" {
			var resp model.AnnotationResponse
			resp, err = s.client.CreateAnnotation(ctx, s.setID, ch.create)
			if err == nil && s.OnCreated != nil {
				s.OnCreated(key, resp.ID)
			}
		} else {
			err = s.client.UpdateAnnotation(ctx, ch.serverID, ch.update)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", key, err))
			continue
		}
		s.mu.Lock()
		if s.pending[key] == ch {
			delete(s.pending, key)
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
