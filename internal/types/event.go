package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is one interaction observed by an upstream producer (chat adapter,
// automation trigger). Rows are append-only: the learning cycle consumes an
// event at most once, and nothing mutates it afterwards.
type Event struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectID  string         `gorm:"not null;index" json:"subject_id"`
	Type       string         `gorm:"column:type;not null;index" json:"type"`
	Payload    datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	OccurredAt time.Time      `gorm:"not null" json:"occurred_at"`
	IngestedAt time.Time      `gorm:"not null;default:now()" json:"ingested_at"`
}

func (Event) TableName() string {
	return "event"
}

// Batch is the transient unit of work a scheduler cycle operates on. It is
// never persisted; ownership passes from the buffer to the generator.
type Batch struct {
	ID     uint64
	Events []*Event
}

func (b *Batch) Empty() bool {
	return b == nil || len(b.Events) == 0
}
