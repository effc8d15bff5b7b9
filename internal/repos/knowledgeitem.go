package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/types"
)

type KnowledgeItemRepo interface {
	UpsertMany(ctx context.Context, tx *gorm.DB, items []*types.KnowledgeItem) error
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.KnowledgeItem, error)
}

type knowledgeItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeItemRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeItemRepo {
	return &knowledgeItemRepo{db: db, log: baseLog.With("repo", "KnowledgeItemRepo")}
}

// UpsertMany inserts new fingerprints and refreshes last_seen_source on the
// ones already present. Content is never overwritten on conflict.
func (r *knowledgeItemRepo) UpsertMany(ctx context.Context, tx *gorm.DB, items []*types.KnowledgeItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen_source"}),
		}).
		Create(&items).Error
}

func (r *knowledgeItemRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.KnowledgeItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.KnowledgeItem
	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
