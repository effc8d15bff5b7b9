// Package insight derives candidate insights from event batches, gates them
// on confidence, and persists the survivors exactly once.
package insight

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/services"
	"github.com/synaptiq/insight-engine/internal/types"
)

// confidenceMargin is subtracted from the gate threshold to form the default
// for statements the reasoner returned without a confidence. The default
// sits below the gate on purpose: unknown confidence must never persist.
const confidenceMargin = 0.05

const summarizeSystemPrompt = `You summarize interaction events into durable facts about a subject.
Respond with JSON: {"statements":[{"statement":"...","confidence":0.0-1.0}]}.
Only include statements directly supported by the events. Omit speculation.
Do not restate facts listed under "known_insights".`

type Generator struct {
	log           *logger.Logger
	reasoner      services.Reasoner
	feedback      FeedbackApplier
	minConfidence float64
	now           func() time.Time
}

// NewGenerator builds the generator. feedback may be nil; when present,
// already-persisted insights for a subject ride along in the prompt so the
// reasoner does not re-derive them.
func NewGenerator(baseLog *logger.Logger, reasoner services.Reasoner, feedback FeedbackApplier, minConfidence float64) *Generator {
	return &Generator{
		log:           baseLog.With("component", "InsightGenerator"),
		reasoner:      reasoner,
		feedback:      feedback,
		minConfidence: minConfidence,
		now:           time.Now,
	}
}

type eventGroup struct {
	subjectID string
	eventType string
	events    []*types.Event
}

// Generate groups the batch by (subject, type) and makes one reasoner call
// per group, so external calls are bounded by the number of distinct groups.
// A group whose call fails or parses to nothing contributes zero candidates;
// the other groups are unaffected. Cancellation between groups returns the
// candidates produced so far.
func (g *Generator) Generate(ctx context.Context, batch *types.Batch) []*types.InsightCandidate {
	if batch.Empty() {
		return nil
	}
	groups := groupEvents(batch.Events)
	log := g.log.With("batch_id", batch.ID)

	var candidates []*types.InsightCandidate
	for _, grp := range groups {
		if ctx.Err() != nil {
			log.Info("Cycle cancelled between groups", "groups_done", len(candidates))
			break
		}
		result, err := g.reasoner.Summarize(ctx, services.ReasonRequest{
			System: summarizeSystemPrompt,
			User:   renderGroup(grp, g.knownInsights(ctx, grp.subjectID)),
		})
		if err != nil {
			log.Warn("Reasoner call failed for group, skipping it",
				"subject_id", grp.subjectID,
				"event_type", grp.eventType,
				"error", err,
			)
			continue
		}
		candidates = append(candidates, g.toCandidates(grp, result)...)
	}
	return candidates
}

// groupEvents preserves arrival order both across groups (first appearance)
// and within each group.
func groupEvents(events []*types.Event) []*eventGroup {
	index := map[[2]string]*eventGroup{}
	var ordered []*eventGroup
	for _, ev := range events {
		key := [2]string{ev.SubjectID, ev.Type}
		grp, ok := index[key]
		if !ok {
			grp = &eventGroup{subjectID: ev.SubjectID, eventType: ev.Type}
			index[key] = grp
			ordered = append(ordered, grp)
		}
		grp.events = append(grp.events, ev)
	}
	return ordered
}

// knownInsights fetches the subject's persisted insights for the prompt.
// Read failures degrade to an empty list; feedback is an optimization, not a
// requirement of generation.
func (g *Generator) knownInsights(ctx context.Context, subjectID string) []string {
	if g.feedback == nil {
		return nil
	}
	rows, err := g.feedback.CurrentInsights(ctx, subjectID)
	if err != nil {
		g.log.Warn("Reading current insights failed, generating without feedback", "subject_id", subjectID, "error", err)
		return nil
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Statement)
	}
	return out
}

func renderGroup(grp *eventGroup, knownInsights []string) string {
	type line struct {
		Type       string          `json:"type"`
		Payload    json.RawMessage `json:"payload,omitempty"`
		OccurredAt time.Time       `json:"occurred_at"`
	}
	lines := make([]line, 0, len(grp.events))
	for _, ev := range grp.events {
		lines = append(lines, line{
			Type:       ev.Type,
			Payload:    json.RawMessage(ev.Payload),
			OccurredAt: ev.OccurredAt,
		})
	}
	prompt := map[string]any{
		"subject_id": grp.subjectID,
		"events":     lines,
	}
	if len(knownInsights) > 0 {
		prompt["known_insights"] = knownInsights
	}
	raw, _ := json.Marshal(prompt)
	return string(raw)
}

func (g *Generator) toCandidates(grp *eventGroup, result *services.ReasonResult) []*types.InsightCandidate {
	if result == nil {
		return nil
	}
	supporting := make([]uuid.UUID, 0, len(grp.events))
	for _, ev := range grp.events {
		supporting = append(supporting, ev.ID)
	}
	generatedAt := g.now().UTC()

	out := make([]*types.InsightCandidate, 0, len(result.Statements))
	for _, st := range result.Statements {
		if st.Statement == "" {
			continue
		}
		confidence := g.minConfidence - confidenceMargin
		if confidence < 0 {
			confidence = 0
		}
		if st.Confidence != nil {
			confidence = clamp01(*st.Confidence)
		}
		out = append(out, &types.InsightCandidate{
			SubjectID:          grp.subjectID,
			Statement:          st.Statement,
			Confidence:         confidence,
			SupportingEventIDs: supporting,
			GeneratedAt:        generatedAt,
		})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
