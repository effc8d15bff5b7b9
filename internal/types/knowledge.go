package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KnowledgeItem is one logical fact in the canonical knowledge set. Identity
// is the fingerprint of the normalized content: two items with the same
// fingerprint are the same fact no matter which source contributed them.
// Immutable once merged except for LastSeenSource.
type KnowledgeItem struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Fingerprint    string         `gorm:"not null;uniqueIndex" json:"fingerprint"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	SourceTag      string         `gorm:"not null;index" json:"source_tag"`
	LastSeenSource string         `gorm:"not null" json:"last_seen_source"`
	Embedding      datatypes.JSON `gorm:"type:jsonb" json:"embedding,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (KnowledgeItem) TableName() string {
	return "knowledge_item"
}
