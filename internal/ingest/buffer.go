// Package ingest buffers incoming events, rejects in-flight duplicates, and
// hands the scheduler ready-to-process batches.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/repos"
	"github.com/synaptiq/insight-engine/internal/types"
)

type SubmitResult string

const (
	Accepted  SubmitResult = "accepted"
	Duplicate SubmitResult = "duplicate"
)

// Buffer is the in-memory pending queue. Submit and Drain take one mutex and
// never touch I/O; durable queuing happens on the flusher goroutine.
type Buffer struct {
	mu          sync.Mutex
	log         *logger.Logger
	dedupWindow time.Duration
	pending     []*types.Event
	seen        map[string]time.Time
	batchSeq    uint64
	now         func() time.Time
	flushCh     chan *types.Event
}

func NewBuffer(baseLog *logger.Logger, dedupWindow time.Duration) *Buffer {
	return &Buffer{
		log:         baseLog.With("component", "IngestBuffer"),
		dedupWindow: dedupWindow,
		seen:        map[string]time.Time{},
		now:         time.Now,
		flushCh:     make(chan *types.Event, 256),
	}
}

// Submit appends the event to the pending queue, or rejects it as a
// duplicate when the same (subject, type, payload) key was accepted within
// the dedup window. Never blocks.
func (b *Buffer) Submit(ev *types.Event) SubmitResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	key := dedupKey(ev)
	if seenAt, ok := b.seen[key]; ok && now.Sub(seenAt) < b.dedupWindow {
		return Duplicate
	}

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = now
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}

	b.seen[key] = now
	b.pending = append(b.pending, ev)

	// Best-effort hand-off to the durable queue. A full channel drops the
	// durable copy, never the in-memory one.
	select {
	case b.flushCh <- ev:
	default:
	}
	return Accepted
}

// Drain atomically removes up to max pending events in arrival order. It
// returns whatever is available, including an empty batch, and never blocks.
func (b *Buffer) Drain(max int) *types.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneSeen()

	n := len(b.pending)
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return &types.Batch{}
	}

	events := make([]*types.Event, n)
	copy(events, b.pending[:n])
	b.pending = append(b.pending[:0:0], b.pending[n:]...)

	b.batchSeq++
	return &types.Batch{ID: b.batchSeq, Events: events}
}

// Pending reports the current queue depth.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// StartFlusher persists accepted events through the event repo in the
// background, at-least-once. The buffer's dedup key makes replays safe, so
// write failures are logged and dropped.
func (b *Buffer) StartFlusher(ctx context.Context, repo repos.EventRepo) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-b.flushCh:
				if err := repo.Create(ctx, nil, []*types.Event{ev}); err != nil {
					b.log.Warn("Durable queue write failed", "event_id", ev.ID, "error", err)
				}
			}
		}
	}()
}

// pruneSeen drops dedup entries older than the window. Caller holds the lock.
func (b *Buffer) pruneSeen() {
	cutoff := b.now().UTC().Add(-b.dedupWindow)
	for key, seenAt := range b.seen {
		if seenAt.Before(cutoff) {
			delete(b.seen, key)
		}
	}
}

func dedupKey(ev *types.Event) string {
	h := sha256.New()
	h.Write([]byte(ev.SubjectID))
	h.Write([]byte{0})
	h.Write([]byte(ev.Type))
	h.Write([]byte{0})
	h.Write(ev.Payload)
	return hex.EncodeToString(h.Sum(nil))
}
