// Package observability carries the per-cycle summary and a small set of
// process-local counters. Nothing here is interactive; the summary is what
// operators audit.
package observability

import (
	"sync"
	"time"
)

// CycleSummary is emitted after every learning cycle.
type CycleSummary struct {
	BatchID          uint64    `json:"batch_id"`
	Drained          int       `json:"drained"`
	Candidates       int       `json:"candidates"`
	Persisted        int       `json:"persisted"`
	AlreadyPersisted int       `json:"already_persisted"`
	Rejected         int       `json:"rejected"`
	Failed           int       `json:"failed"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

type Metrics struct {
	mu                  sync.Mutex
	cyclesRun           uint64
	triggersDropped     uint64
	emptyCycles         uint64
	candidatesGenerated uint64
	insightsPersisted   uint64
	insightsRejected    uint64
	insightsFailed      uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordCycle(s CycleSummary) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cyclesRun++
	m.candidatesGenerated += uint64(s.Candidates)
	m.insightsPersisted += uint64(s.Persisted)
	m.insightsRejected += uint64(s.Rejected)
	m.insightsFailed += uint64(s.Failed)
}

func (m *Metrics) RecordEmptyCycle() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyCycles++
}

func (m *Metrics) RecordDroppedTrigger() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggersDropped++
}

// Snapshot returns a copy of all counters, keyed for logging.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]uint64{
		"cycles_run":           m.cyclesRun,
		"triggers_dropped":     m.triggersDropped,
		"empty_cycles":         m.emptyCycles,
		"candidates_generated": m.candidatesGenerated,
		"insights_persisted":   m.insightsPersisted,
		"insights_rejected":    m.insightsRejected,
		"insights_failed":      m.insightsFailed,
	}
}
