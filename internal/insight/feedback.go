package insight

import (
	"context"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/repos"
	"github.com/synaptiq/insight-engine/internal/types"
)

// FeedbackApplier is the read projection the rest of the system consumes to
// adjust behavior. It has no mutation path.
type FeedbackApplier interface {
	CurrentInsights(ctx context.Context, subjectID string) ([]*types.Insight, error)
}

type feedbackApplier struct {
	log  *logger.Logger
	repo repos.InsightRepo
}

func NewFeedbackApplier(baseLog *logger.Logger, repo repos.InsightRepo) FeedbackApplier {
	return &feedbackApplier{
		log:  baseLog.With("component", "FeedbackApplier"),
		repo: repo,
	}
}

// CurrentInsights returns the persisted insights for a subject, newest
// first, always reflecting the latest successful commit.
func (f *feedbackApplier) CurrentInsights(ctx context.Context, subjectID string) ([]*types.Insight, error) {
	return f.repo.GetBySubjectID(ctx, nil, subjectID)
}
