package knowledge

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/synaptiq/insight-engine/internal/logger"
)

func staticSource(name string, contents ...string) Source {
	items := make([]SnapshotItem, 0, len(contents))
	for _, c := range contents {
		items = append(items, SnapshotItem{Content: c})
	}
	return &StaticSource{SourceName: name, Snapshot: items}
}

type brokenSource struct{ name string }

func (s *brokenSource) Name() string { return s.name }
func (s *brokenSource) Items(context.Context) ([]SnapshotItem, error) {
	return nil, errors.New("connection refused")
}

func TestMerge_UnionNotSum(t *testing.T) {
	// Two overlapping sources must yield the size of the union, never the
	// sum of the per-source counts.
	e := NewEngine(logger.Nop(), nil)
	a := staticSource("primary", "x", "y")
	b := staticSource("secondary", "y", "z")

	cs, report := e.Merge(context.Background(), []Source{a, b})

	if cs.Len() != 3 {
		t.Fatalf("expected 3 canonical items, got %d", cs.Len())
	}
	if report.TotalCanonical != 3 {
		t.Fatalf("report.TotalCanonical = %d, want 3", report.TotalCanonical)
	}
	if report.DuplicatesCollapsed != 1 {
		t.Fatalf("report.DuplicatesCollapsed = %d, want 1", report.DuplicatesCollapsed)
	}
	if report.PerSourceSkipped["secondary"] != 1 {
		t.Fatalf("expected 1 skip attributed to secondary, got %v", report.PerSourceSkipped)
	}
}

func TestMerge_FirstSeenByPrecedenceWins(t *testing.T) {
	e := NewEngine(logger.Nop(), nil)
	// Same fingerprint after normalization, different raw content.
	a := staticSource("primary", "User prefers dark mode")
	b := staticSource("secondary", "  user PREFERS dark mode ")

	cs, _ := e.Merge(context.Background(), []Source{a, b})

	if cs.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", cs.Len())
	}
	item := cs.Items()[0]
	if item.Content != "User prefers dark mode" {
		t.Fatalf("expected primary's raw content to win, got %q", item.Content)
	}
	if item.SourceTag != "primary" {
		t.Fatalf("expected attribution to primary, got %q", item.SourceTag)
	}
	if item.LastSeenSource != "secondary" {
		t.Fatalf("expected LastSeenSource updated to secondary, got %q", item.LastSeenSource)
	}
}

func TestMerge_FullOverlapYieldsUnionSize(t *testing.T) {
	// Regression for the duplicate-accumulation bug: two copies of the same
	// collection must merge to its own size, not double it.
	e := NewEngine(logger.Nop(), nil)
	contents := make([]string, 0, 970)
	for i := 0; i < 970; i++ {
		contents = append(contents, "fact "+string(rune('a'+i%26))+" #"+strconv.Itoa(i))
	}
	a := staticSource("store", contents...)
	b := staticSource("export", contents...)

	cs, report := e.Merge(context.Background(), []Source{a, b})

	if cs.Len() != 970 {
		t.Fatalf("expected 970 items, got %d", cs.Len())
	}
	if report.DuplicatesCollapsed != 970 {
		t.Fatalf("expected 970 collapsed duplicates, got %d", report.DuplicatesCollapsed)
	}
}

func TestMerge_UnreadableSourceSkipped(t *testing.T) {
	e := NewEngine(logger.Nop(), nil)
	a := staticSource("primary", "x")
	b := &brokenSource{name: "flaky"}
	c := staticSource("tertiary", "y")

	cs, report := e.Merge(context.Background(), []Source{a, b, c})

	if cs.Len() != 2 {
		t.Fatalf("expected merge to proceed with 2 items, got %d", cs.Len())
	}
	if len(report.UnreadableSources) != 1 || report.UnreadableSources[0] != "flaky" {
		t.Fatalf("expected flaky recorded as unreadable, got %v", report.UnreadableSources)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := NewEngine(logger.Nop(), nil)
		numSources := rapid.IntRange(1, 4).Draw(rt, "num_sources")
		sources := make([]Source, 0, numSources)
		for i := 0; i < numSources; i++ {
			n := rapid.IntRange(0, 15).Draw(rt, "items")
			items := make([]SnapshotItem, 0, n)
			for j := 0; j < n; j++ {
				content := rapid.SampledFrom([]string{
					"alpha", "Alpha", "  alpha ", "beta", "gamma gamma",
					"delta", "epsilon", "zeta\tzeta",
				}).Draw(rt, "content")
				items = append(items, SnapshotItem{Content: content})
			}
			sources = append(sources, &StaticSource{SourceName: "s" + strconv.Itoa(i), Snapshot: items})
		}

		once, _ := e.Merge(context.Background(), sources)
		twice, _ := e.Merge(context.Background(), []Source{once.AsSource("sole")})

		if once.Len() != twice.Len() {
			rt.Fatalf("re-merge changed count: %d -> %d", once.Len(), twice.Len())
		}
		for _, it := range once.Items() {
			re, ok := twice.Get(it.Fingerprint)
			if !ok {
				rt.Fatalf("fingerprint %s lost on re-merge", it.Fingerprint)
			}
			if re.Content != it.Content {
				rt.Fatalf("content changed on re-merge: %q -> %q", it.Content, re.Content)
			}
		}
	})
}

func TestReconcile_ExistingSetTakesPrecedence(t *testing.T) {
	e := NewEngine(logger.Nop(), nil)
	existing, _ := e.Merge(context.Background(), []Source{staticSource("primary", "x", "y")})

	merged, report := e.Reconcile(context.Background(), existing, []Source{staticSource("incoming", "Y", "z")})

	if merged.Len() != 3 {
		t.Fatalf("expected 3 items after reconcile, got %d", merged.Len())
	}
	if report.DuplicatesCollapsed != 1 {
		t.Fatalf("expected 1 duplicate collapsed, got %d", report.DuplicatesCollapsed)
	}
	// Re-running reconcile over the same sources must not grow the set.
	again, _ := e.Reconcile(context.Background(), merged, []Source{staticSource("incoming", "Y", "z")})
	if again.Len() != 3 {
		t.Fatalf("reconcile is not idempotent: %d -> %d", merged.Len(), again.Len())
	}
}

