package scheduler

import (
	"context"
	"time"

	"github.com/synaptiq/insight-engine/internal/app"
	"github.com/synaptiq/insight-engine/internal/ingest"
	"github.com/synaptiq/insight-engine/internal/insight"
	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/observability"
	"github.com/synaptiq/insight-engine/internal/types"
)

// Generator and Committer are the downstream stages of a cycle, narrowed to
// interfaces so the scheduler tests run against fakes.
type Generator interface {
	Generate(ctx context.Context, batch *types.Batch) []*types.InsightCandidate
}

type Committer interface {
	Commit(ctx context.Context, candidates []*types.InsightCandidate) *insight.CommitResult
}

// InsightProjector mirrors persisted insights into the graph store. Optional.
type InsightProjector interface {
	ProjectInsights(ctx context.Context, insights []*types.Insight) error
}

// SummaryPublisher emits the per-cycle summary for audit. Optional.
type SummaryPublisher interface {
	PublishCycleSummary(ctx context.Context, s observability.CycleSummary) error
}

type Scheduler struct {
	log         *logger.Logger
	cfg         app.Config
	state       *State
	buffer      *ingest.Buffer
	generator   Generator
	coordinator Committer
	projector   InsightProjector
	publisher   SummaryPublisher
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewScheduler(
	baseLog *logger.Logger,
	cfg app.Config,
	state *State,
	buffer *ingest.Buffer,
	generator Generator,
	coordinator Committer,
	projector InsightProjector,
	publisher SummaryPublisher,
	metrics *observability.Metrics,
) *Scheduler {
	return &Scheduler{
		log:         baseLog.With("component", "BatchScheduler"),
		cfg:         cfg,
		state:       state,
		buffer:      buffer,
		generator:   generator,
		coordinator: coordinator,
		projector:   projector,
		publisher:   publisher,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Start runs the periodic trigger until ctx is cancelled. Manual triggers
// go through the same guard, so neither path can start a second in-flight
// cycle or violate the cooldown.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Trigger(ctx)
			}
		}
	}()
}

// Trigger attempts one learning cycle. Returns true when a cycle actually
// ran (even if downstream stages failed), false when the trigger was dropped
// by the cooldown or an in-flight cycle, or the buffer was empty.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	startedAt := s.now().UTC()
	if !s.state.TryBegin(startedAt, s.cfg.Cooldown) {
		// Contention is expected under overlapping triggers; the next
		// eligible trigger will run the cycle.
		s.metrics.RecordDroppedTrigger()
		s.log.Debug("Trigger dropped", "in_flight", s.state.InFlight(), "last_run_at", s.state.LastRunAt())
		return false
	}

	batch := s.buffer.Drain(s.cfg.MaxBatchSize)
	if batch.Empty() {
		// An empty cycle does not consume cooldown budget.
		s.state.Abort()
		s.metrics.RecordEmptyCycle()
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Cycle panicked", "batch_id", batch.ID, "panic", r)
		}
		s.state.Complete(s.now().UTC())
	}()

	s.runCycle(ctx, batch, startedAt)
	return true
}

func (s *Scheduler) runCycle(ctx context.Context, batch *types.Batch, startedAt time.Time) {
	log := s.log.With("batch_id", batch.ID)
	log.Info("Cycle started", "events", len(batch.Events))

	candidates := s.generator.Generate(ctx, batch)
	// Commit even when generation was cut short: commit is idempotent and
	// per-candidate, so completed groups are never thrown away.
	result := s.coordinator.Commit(ctx, candidates)

	if s.projector != nil && len(result.Persisted) > 0 {
		if err := s.projector.ProjectInsights(ctx, result.Persisted); err != nil {
			log.Warn("Graph projection failed", "error", err)
		}
	}

	summary := observability.CycleSummary{
		BatchID:          batch.ID,
		Drained:          len(batch.Events),
		Candidates:       len(candidates),
		Persisted:        len(result.Persisted),
		AlreadyPersisted: len(result.AlreadyPersisted),
		Rejected:         len(result.Rejected),
		Failed:           len(result.Failed),
		StartedAt:        startedAt,
		FinishedAt:       s.now().UTC(),
	}
	s.metrics.RecordCycle(summary)
	if s.publisher != nil {
		if err := s.publisher.PublishCycleSummary(ctx, summary); err != nil {
			log.Warn("Cycle summary publish failed", "error", err)
		}
	}

	log.Info("Cycle finished",
		"candidates", summary.Candidates,
		"persisted", summary.Persisted,
		"already_persisted", summary.AlreadyPersisted,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
	)
}
