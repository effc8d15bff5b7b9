package knowledge

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/synaptiq/insight-engine/internal/repos"
)

// StaticSource is an in-memory snapshot collection, used for fixed seed
// knowledge and throughout the tests.
type StaticSource struct {
	SourceName string
	Snapshot   []SnapshotItem
}

func (s *StaticSource) Name() string { return s.SourceName }

func (s *StaticSource) Items(_ context.Context) ([]SnapshotItem, error) {
	return s.Snapshot, nil
}

// FileSource reads a YAML snapshot dump. The file is read lazily at merge
// time so a missing or malformed file degrades to a skipped source.
type FileSource struct {
	SourceName string
	Path       string
}

type snapshotFile struct {
	Items []struct {
		Content   string    `yaml:"content"`
		Embedding []float32 `yaml:"embedding,omitempty"`
		CreatedAt time.Time `yaml:"created_at,omitempty"`
	} `yaml:"items"`
}

func (s *FileSource) Name() string { return s.SourceName }

func (s *FileSource) Items(_ context.Context) ([]SnapshotItem, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	var parsed snapshotFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse snapshot file: %w", err)
	}
	out := make([]SnapshotItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		out = append(out, SnapshotItem{Content: it.Content, Embedding: it.Embedding, CreatedAt: it.CreatedAt})
	}
	return out, nil
}

// RepoSource exposes the persisted canonical set (the document store) as a
// snapshot source, which is how reconcile seeds precedence from durable
// state.
type RepoSource struct {
	SourceName string
	Repo       repos.KnowledgeItemRepo
	DB         *gorm.DB
}

func (s *RepoSource) Name() string { return s.SourceName }

func (s *RepoSource) Items(ctx context.Context) ([]SnapshotItem, error) {
	rows, err := s.Repo.GetAll(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("read canonical store: %w", err)
	}
	out := make([]SnapshotItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, SnapshotItem{Content: row.Content, CreatedAt: row.CreatedAt})
	}
	return out, nil
}
