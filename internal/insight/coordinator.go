package insight

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/synaptiq/insight-engine/internal/fingerprint"
	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/repos"
	"github.com/synaptiq/insight-engine/internal/types"
)

const (
	maxWriteAttempts = 3
	writeConcurrency = 4
)

// CommitResult reports what happened to every candidate of one commit call.
type CommitResult struct {
	Persisted        []*types.Insight
	AlreadyPersisted []*types.InsightCandidate
	Rejected         []*types.InsightCandidate
	Failed           []*types.InsightCandidate
}

// Coordinator applies the confidence gate and commits accepted candidates
// at most once per (subject, statement fingerprint). It is the only writer
// of the insight store.
type Coordinator struct {
	log       *logger.Logger
	repo      repos.InsightRepo
	threshold float64
	sleep     func(time.Duration)
}

func NewCoordinator(baseLog *logger.Logger, repo repos.InsightRepo, threshold float64) *Coordinator {
	return &Coordinator{
		log:       baseLog.With("component", "PersistenceCoordinator"),
		repo:      repo,
		threshold: threshold,
		sleep:     time.Sleep,
	}
}

// Commit gates and writes candidates. Writes run in parallel and are
// per-candidate: one failing write is retried with bounded backoff, then
// reported failed, without touching its siblings. A duplicate detected
// before or during the write is success, not an error.
func (c *Coordinator) Commit(ctx context.Context, candidates []*types.InsightCandidate) *CommitResult {
	result := &CommitResult{}
	var accepted []*types.InsightCandidate
	for _, cand := range candidates {
		if cand.Confidence >= c.threshold {
			accepted = append(accepted, cand)
		} else {
			result.Rejected = append(result.Rejected, cand)
		}
	}
	if len(accepted) == 0 {
		return result
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(writeConcurrency)
	for _, cand := range accepted {
		eg.Go(func() error {
			persisted, outcome := c.commitOne(egCtx, cand)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomePersisted:
				result.Persisted = append(result.Persisted, persisted)
			case outcomeDuplicate:
				result.AlreadyPersisted = append(result.AlreadyPersisted, cand)
			case outcomeFailed:
				result.Failed = append(result.Failed, cand)
			}
			return nil
		})
	}
	_ = eg.Wait()

	c.log.Info("Commit complete",
		"persisted", len(result.Persisted),
		"already_persisted", len(result.AlreadyPersisted),
		"rejected", len(result.Rejected),
		"failed", len(result.Failed),
	)
	return result
}

type commitOutcome int

const (
	outcomePersisted commitOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

func (c *Coordinator) commitOne(ctx context.Context, cand *types.InsightCandidate) (*types.Insight, commitOutcome) {
	fp := fingerprint.Hash(cand.Statement)
	log := c.log.With("subject_id", cand.SubjectID, "statement_fingerprint", fp)

	exists, err := c.repo.Exists(ctx, nil, cand.SubjectID, fp)
	if err != nil {
		log.Warn("Existence pre-check failed, relying on unique index", "error", err)
	} else if exists {
		return nil, outcomeDuplicate
	}

	row := &types.Insight{
		SubjectID:            cand.SubjectID,
		StatementFingerprint: fp,
		Statement:            cand.Statement,
		Confidence:           cand.Confidence,
		SupportingEventIDs:   marshalEventIDs(cand),
		GeneratedAt:          cand.GeneratedAt,
	}

	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := c.repo.Create(ctx, nil, row)
		if err == nil {
			return row, outcomePersisted
		}
		if isDuplicateKey(err) {
			// Lost the race against an earlier cycle's write. The insight is
			// durable, so this is a no-op.
			return nil, outcomeDuplicate
		}
		if attempt == maxWriteAttempts {
			log.Error("Insight write failed after retries", "attempts", attempt, "error", err)
			return nil, outcomeFailed
		}
		log.Warn("Insight write failed, retrying", "attempt", attempt, "error", err)
		c.sleep(backoff)
		backoff *= 2
	}
	return nil, outcomeFailed
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshalEventIDs(cand *types.InsightCandidate) datatypes.JSON {
	raw, err := json.Marshal(cand.SupportingEventIDs)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
