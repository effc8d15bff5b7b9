package scheduler

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/synaptiq/insight-engine/internal/app"
	"github.com/synaptiq/insight-engine/internal/ingest"
	"github.com/synaptiq/insight-engine/internal/insight"
	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/observability"
	"github.com/synaptiq/insight-engine/internal/types"
)

type fakeGenerator struct {
	calls   atomic.Int64
	block   chan struct{}
	produce func(batch *types.Batch) []*types.InsightCandidate
}

func (f *fakeGenerator) Generate(_ context.Context, batch *types.Batch) []*types.InsightCandidate {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.produce != nil {
		return f.produce(batch)
	}
	return nil
}

type fakeCommitter struct {
	mu      sync.Mutex
	commits [][]*types.InsightCandidate
}

func (f *fakeCommitter) Commit(_ context.Context, candidates []*types.InsightCandidate) *insight.CommitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, candidates)
	return &insight.CommitResult{}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestScheduler(gen Generator, com Committer) (*Scheduler, *ingest.Buffer, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := app.Config{
		MinConfidence: 0.7,
		MaxBatchSize:  10,
		Cooldown:      time.Minute,
		DedupWindow:   time.Minute,
	}
	buffer := ingest.NewBuffer(logger.Nop(), cfg.DedupWindow)
	s := NewScheduler(logger.Nop(), cfg, NewState(), buffer, gen, com, nil, nil, observability.NewMetrics())
	s.now = clock.Now
	return s, buffer, clock
}

func submitEvents(buffer *ingest.Buffer, n int, tag string) {
	for i := 0; i < n; i++ {
		buffer.Submit(&types.Event{
			SubjectID: "u1",
			Type:      "message_sent",
			Payload:   datatypes.JSON(`{"tag":"` + tag + `","n":` + strconv.Itoa(i) + `}`),
		})
	}
}

func TestTrigger_CooldownEnforced(t *testing.T) {
	gen := &fakeGenerator{}
	s, buffer, clock := newTestScheduler(gen, &fakeCommitter{})

	submitEvents(buffer, 3, "first")
	if !s.Trigger(context.Background()) {
		t.Fatalf("first trigger should run")
	}

	// Second trigger inside the cooldown window must be dropped.
	submitEvents(buffer, 3, "second")
	clock.Advance(30 * time.Second)
	if s.Trigger(context.Background()) {
		t.Fatalf("trigger within cooldown must not run")
	}

	// A trigger after the cooldown elapses runs a second cycle.
	clock.Advance(31 * time.Second)
	if !s.Trigger(context.Background()) {
		t.Fatalf("trigger after cooldown should run")
	}
	if got := gen.calls.Load(); got != 2 {
		t.Fatalf("expected exactly 2 cycles, got %d", got)
	}
}

func TestTrigger_EmptyBufferIsNoOp(t *testing.T) {
	s, buffer, clock := newTestScheduler(&fakeGenerator{}, &fakeCommitter{})

	if s.Trigger(context.Background()) {
		t.Fatalf("empty drain must not count as a cycle")
	}
	if !s.state.LastRunAt().IsZero() {
		t.Fatalf("empty cycle must not update lastRunAt")
	}
	if s.state.InFlight() {
		t.Fatalf("scheduler must return to idle after empty drain")
	}

	// The empty cycle consumed no cooldown budget: an immediate trigger with
	// events runs.
	clock.Advance(time.Second)
	submitEvents(buffer, 1, "later")
	if !s.Trigger(context.Background()) {
		t.Fatalf("trigger after empty cycle should run immediately")
	}
}

func TestTrigger_SingleFlight(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	s, buffer, _ := newTestScheduler(gen, &fakeCommitter{})

	submitEvents(buffer, 2, "first")
	done := make(chan bool)
	go func() { done <- s.Trigger(context.Background()) }()

	// Wait until the cycle is actually in flight.
	for i := 0; i < 100 && !s.state.InFlight(); i++ {
		time.Sleep(time.Millisecond)
	}
	if !s.state.InFlight() {
		t.Fatalf("expected a cycle in flight")
	}

	submitEvents(buffer, 2, "second")
	if s.Trigger(context.Background()) {
		t.Fatalf("concurrent trigger must be dropped while a cycle is in flight")
	}

	close(gen.block)
	if !<-done {
		t.Fatalf("blocked cycle should report as run")
	}
	if s.state.InFlight() {
		t.Fatalf("expected idle after completion")
	}
}

func TestTrigger_ConcurrentTriggersRunExactlyOneCycle(t *testing.T) {
	gen := &fakeGenerator{}
	s, buffer, _ := newTestScheduler(gen, &fakeCommitter{})
	submitEvents(buffer, 5, "burst")

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Trigger(context.Background()) {
				ran.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := ran.Load(); got != 1 {
		t.Fatalf("expected exactly one winning trigger, got %d", got)
	}
}

func TestTrigger_CommitsWhateverGenerationProduced(t *testing.T) {
	com := &fakeCommitter{}
	gen := &fakeGenerator{
		produce: func(batch *types.Batch) []*types.InsightCandidate {
			return []*types.InsightCandidate{{SubjectID: "u1", Statement: "likes go", Confidence: 0.9}}
		},
	}
	s, buffer, _ := newTestScheduler(gen, com)

	submitEvents(buffer, 2, "only")
	if !s.Trigger(context.Background()) {
		t.Fatalf("expected cycle to run")
	}
	if len(com.commits) != 1 || len(com.commits[0]) != 1 {
		t.Fatalf("expected one commit with one candidate, got %v", com.commits)
	}
	if s.state.LastRunAt().IsZero() {
		t.Fatalf("completed cycle must update lastRunAt")
	}
}

func TestState_TryBeginIsAtomic(t *testing.T) {
	state := NewState()
	now := time.Now()

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if state.TryBegin(now, time.Minute) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one TryBegin winner, got %d", got)
	}
}
