// Package knowledge consolidates heterogeneous snapshot sources into one
// canonical, fingerprint-deduplicated knowledge set.
package knowledge

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/synaptiq/insight-engine/internal/fingerprint"
	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/repos"
	"github.com/synaptiq/insight-engine/internal/types"
)

// SnapshotItem is one raw fact as a source reports it, before fingerprinting.
type SnapshotItem struct {
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Source is a readable snapshot collection. Precedence is positional: the
// first source handed to Merge is the source of truth, later ones are
// supplementary.
type Source interface {
	Name() string
	Items(ctx context.Context) ([]SnapshotItem, error)
}

// CanonicalSet is the merged, duplicate-free knowledge collection. Items are
// kept in first-seen order so repeated merges produce identical output.
type CanonicalSet struct {
	order []string
	items map[string]*types.KnowledgeItem
}

func NewCanonicalSet() *CanonicalSet {
	return &CanonicalSet{items: map[string]*types.KnowledgeItem{}}
}

func (cs *CanonicalSet) Len() int {
	return len(cs.order)
}

func (cs *CanonicalSet) Get(fp string) (*types.KnowledgeItem, bool) {
	it, ok := cs.items[fp]
	return it, ok
}

// Items returns the members in first-seen order.
func (cs *CanonicalSet) Items() []*types.KnowledgeItem {
	out := make([]*types.KnowledgeItem, 0, len(cs.order))
	for _, fp := range cs.order {
		out = append(out, cs.items[fp])
	}
	return out
}

func (cs *CanonicalSet) insert(item *types.KnowledgeItem) {
	cs.order = append(cs.order, item.Fingerprint)
	cs.items[item.Fingerprint] = item
}

// AsSource exposes the set itself as a snapshot source, which is how a
// previously merged set participates in a later reconcile.
func (cs *CanonicalSet) AsSource(name string) Source {
	return &setSource{name: name, set: cs}
}

type setSource struct {
	name string
	set  *CanonicalSet
}

func (s *setSource) Name() string { return s.name }

func (s *setSource) Items(_ context.Context) ([]SnapshotItem, error) {
	out := make([]SnapshotItem, 0, s.set.Len())
	for _, it := range s.set.Items() {
		var emb []float32
		if len(it.Embedding) > 0 {
			_ = json.Unmarshal(it.Embedding, &emb)
		}
		out = append(out, SnapshotItem{Content: it.Content, Embedding: emb, CreatedAt: it.CreatedAt})
	}
	return out, nil
}

// Report is the merge-status summary emitted after every merge run.
type Report struct {
	TotalCanonical      int            `json:"total_canonical"`
	DuplicatesCollapsed int            `json:"duplicates_collapsed"`
	PerSourceSkipped    map[string]int `json:"per_source_skipped"`
	UnreadableSources   []string       `json:"unreadable_sources,omitempty"`
}

type Engine struct {
	log  *logger.Logger
	repo repos.KnowledgeItemRepo
}

// NewEngine builds a merge engine. repo may be nil when the canonical set is
// not persisted (tests, dry runs).
func NewEngine(baseLog *logger.Logger, repo repos.KnowledgeItemRepo) *Engine {
	return &Engine{
		log:  baseLog.With("component", "MergeEngine"),
		repo: repo,
	}
}

// Merge consolidates sources in precedence order. For every item the
// normalized-content fingerprint decides identity: first seen wins, later
// occurrences only bump LastSeenSource. The resulting count is the number of
// distinct fingerprints across all sources, never the sum of source sizes.
// An unreadable source is skipped and recorded, not fatal.
func (e *Engine) Merge(ctx context.Context, sources []Source) (*CanonicalSet, *Report) {
	cs := NewCanonicalSet()
	report := &Report{PerSourceSkipped: map[string]int{}}

	for _, src := range sources {
		items, err := src.Items(ctx)
		if err != nil {
			e.log.Warn("Source unreadable, continuing without it", "source", src.Name(), "error", err)
			report.UnreadableSources = append(report.UnreadableSources, src.Name())
			continue
		}
		for _, item := range items {
			fp := fingerprint.Hash(item.Content)
			if existing, ok := cs.Get(fp); ok {
				// First-seen-by-precedence wins on content; only the
				// provenance marker moves.
				existing.LastSeenSource = src.Name()
				report.DuplicatesCollapsed++
				report.PerSourceSkipped[src.Name()]++
				continue
			}
			cs.insert(&types.KnowledgeItem{
				Fingerprint:    fp,
				Content:        item.Content,
				SourceTag:      src.Name(),
				LastSeenSource: src.Name(),
				Embedding:      marshalEmbedding(item.Embedding),
				CreatedAt:      item.CreatedAt,
			})
		}
	}

	report.TotalCanonical = cs.Len()
	e.log.Info("Merge complete",
		"total_canonical", report.TotalCanonical,
		"duplicates_collapsed", report.DuplicatesCollapsed,
		"unreadable_sources", len(report.UnreadableSources),
	)
	return cs, report
}

// Reconcile re-merges sources against an existing canonical set. The
// existing set takes highest precedence, so re-running reconcile over
// unchanged sources is a no-op on membership.
func (e *Engine) Reconcile(ctx context.Context, existing *CanonicalSet, sources []Source) (*CanonicalSet, *Report) {
	combined := make([]Source, 0, len(sources)+1)
	if existing != nil && existing.Len() > 0 {
		combined = append(combined, existing.AsSource("canonical"))
	}
	combined = append(combined, sources...)
	return e.Merge(ctx, combined)
}

// Store writes the canonical set through the knowledge repo. The merge
// engine is the only writer of the canonical store.
func (e *Engine) Store(ctx context.Context, cs *CanonicalSet) error {
	if e.repo == nil {
		return nil
	}
	return e.repo.UpsertMany(ctx, nil, cs.Items())
}

func marshalEmbedding(emb []float32) datatypes.JSON {
	if len(emb) == 0 {
		return nil
	}
	raw, err := json.Marshal(emb)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
