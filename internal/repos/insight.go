package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/types"
)

type InsightRepo interface {
	Create(ctx context.Context, tx *gorm.DB, insight *types.Insight) error
	Exists(ctx context.Context, tx *gorm.DB, subjectID, statementFingerprint string) (bool, error)
	GetBySubjectID(ctx context.Context, tx *gorm.DB, subjectID string) ([]*types.Insight, error)
}

type insightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInsightRepo(db *gorm.DB, baseLog *logger.Logger) InsightRepo {
	return &insightRepo{db: db, log: baseLog.With("repo", "InsightRepo")}
}

func (r *insightRepo) Create(ctx context.Context, tx *gorm.DB, insight *types.Insight) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(insight).Error
}

func (r *insightRepo) Exists(ctx context.Context, tx *gorm.DB, subjectID, statementFingerprint string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Insight
	err := transaction.WithContext(ctx).
		Where("subject_id = ? AND statement_fingerprint = ?", subjectID, statementFingerprint).
		First(&row).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (r *insightRepo) GetBySubjectID(ctx context.Context, tx *gorm.DB, subjectID string) ([]*types.Insight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Insight
	if subjectID == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
