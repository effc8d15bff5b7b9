package ingest

import (
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/types"
)

func newTestBuffer(window time.Duration) (*Buffer, *time.Time) {
	b := NewBuffer(logger.Nop(), window)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func event(subject, typ, payload string) *types.Event {
	return &types.Event{
		SubjectID: subject,
		Type:      typ,
		Payload:   datatypes.JSON(payload),
	}
}

func TestSubmit_RejectsDuplicateWithinWindow(t *testing.T) {
	b, _ := newTestBuffer(time.Minute)

	if got := b.Submit(event("u1", "message_sent", `{"text":"hi"}`)); got != Accepted {
		t.Fatalf("first submit = %v, want accepted", got)
	}
	if got := b.Submit(event("u1", "message_sent", `{"text":"hi"}`)); got != Duplicate {
		t.Fatalf("second submit = %v, want duplicate", got)
	}
	if b.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", b.Pending())
	}
}

func TestSubmit_AcceptsAgainAfterWindow(t *testing.T) {
	b, now := newTestBuffer(time.Minute)

	b.Submit(event("u1", "message_sent", `{"text":"hi"}`))
	*now = now.Add(61 * time.Second)
	if got := b.Submit(event("u1", "message_sent", `{"text":"hi"}`)); got != Accepted {
		t.Fatalf("submit after window = %v, want accepted", got)
	}
}

func TestSubmit_DistinctKeysAllAccepted(t *testing.T) {
	b, _ := newTestBuffer(time.Minute)

	if got := b.Submit(event("u1", "message_sent", `{"text":"hi"}`)); got != Accepted {
		t.Fatalf("got %v", got)
	}
	if got := b.Submit(event("u2", "message_sent", `{"text":"hi"}`)); got != Accepted {
		t.Fatalf("different subject should be accepted, got %v", got)
	}
	if got := b.Submit(event("u1", "reaction_added", `{"text":"hi"}`)); got != Accepted {
		t.Fatalf("different type should be accepted, got %v", got)
	}
	if got := b.Submit(event("u1", "message_sent", `{"text":"yo"}`)); got != Accepted {
		t.Fatalf("different payload should be accepted, got %v", got)
	}
}

func TestDrain_PreservesArrivalOrderAndBound(t *testing.T) {
	b, _ := newTestBuffer(time.Minute)

	for i := 0; i < 5; i++ {
		b.Submit(event("u1", "message_sent", `{"n":`+string(rune('0'+i))+`}`))
	}

	batch := b.Drain(3)
	if len(batch.Events) != 3 {
		t.Fatalf("drained %d events, want 3", len(batch.Events))
	}
	if batch.ID == 0 {
		t.Fatalf("expected non-zero batch id")
	}
	for i, ev := range batch.Events {
		want := `{"n":` + string(rune('0'+i)) + `}`
		if string(ev.Payload) != want {
			t.Fatalf("event %d out of order: %s", i, ev.Payload)
		}
	}
	if b.Pending() != 2 {
		t.Fatalf("pending after drain = %d, want 2", b.Pending())
	}
}

func TestDrain_EmptyBufferReturnsEmptyBatch(t *testing.T) {
	b, _ := newTestBuffer(time.Minute)

	batch := b.Drain(10)
	if !batch.Empty() {
		t.Fatalf("expected empty batch")
	}
	if batch.ID != 0 {
		t.Fatalf("empty drain must not consume a batch id, got %d", batch.ID)
	}
}

func TestDrain_EventAppearsInAtMostOneBatch(t *testing.T) {
	b, _ := newTestBuffer(time.Minute)

	for i := 0; i < 4; i++ {
		b.Submit(event("u"+string(rune('0'+i)), "message_sent", `{}`))
	}

	first := b.Drain(2)
	second := b.Drain(10)
	if first.ID == second.ID {
		t.Fatalf("batch ids must be distinct")
	}
	seen := map[string]uint64{}
	for _, batch := range []*types.Batch{first, second} {
		for _, ev := range batch.Events {
			if prev, ok := seen[ev.ID.String()]; ok {
				t.Fatalf("event %s appeared in batches %d and %d", ev.ID, prev, batch.ID)
			}
			seen[ev.ID.String()] = batch.ID
		}
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct events across batches, got %d", len(seen))
	}
}

func TestSubmit_AssignsIdentityAndTimestamps(t *testing.T) {
	b, _ := newTestBuffer(time.Minute)

	ev := event("u1", "message_sent", `{}`)
	b.Submit(ev)
	if ev.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected id assigned")
	}
	if ev.IngestedAt.IsZero() || ev.OccurredAt.IsZero() {
		t.Fatalf("expected timestamps assigned")
	}
}
