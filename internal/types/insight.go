package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InsightCandidate is the transient output of one reasoning call, before the
// confidence gate has seen it. Never mutated after creation.
type InsightCandidate struct {
	SubjectID          string      `json:"subject_id"`
	Statement          string      `json:"statement"`
	Confidence         float64     `json:"confidence"`
	SupportingEventIDs []uuid.UUID `json:"supporting_event_ids"`
	GeneratedAt        time.Time   `json:"generated_at"`
}

// Insight is the durable, accepted form of a candidate. The composite unique
// index on (subject_id, statement_fingerprint) is what makes commit
// idempotent under batch replay.
type Insight struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectID            string         `gorm:"not null;uniqueIndex:idx_subject_statement" json:"subject_id"`
	StatementFingerprint string         `gorm:"not null;uniqueIndex:idx_subject_statement" json:"statement_fingerprint"`
	Statement            string         `gorm:"type:text;not null" json:"statement"`
	Confidence           float64        `gorm:"not null" json:"confidence"`
	SupportingEventIDs   datatypes.JSON `gorm:"type:jsonb" json:"supporting_event_ids"`
	GeneratedAt          time.Time      `gorm:"not null" json:"generated_at"`
	CreatedAt            time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Insight) TableName() string {
	return "insight"
}
