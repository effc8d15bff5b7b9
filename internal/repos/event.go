package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/types"
)

type EventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.Event) error
	GetBySubjectID(ctx context.Context, tx *gorm.DB, subjectID string, limit int) ([]*types.Event, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.Event) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&events).Error
}

func (r *eventRepo) GetBySubjectID(ctx context.Context, tx *gorm.DB, subjectID string, limit int) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Event
	if subjectID == "" {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
