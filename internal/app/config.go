package app

import (
	"time"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/utils"
)

// Config holds the four learning-loop tunables. Everything else in the
// system is behavior, not configuration.
type Config struct {
	// MinConfidence is the gate threshold: candidates at or above it are
	// persisted, everything below is discarded.
	MinConfidence float64
	// MaxBatchSize bounds how many pending events one cycle may drain.
	MaxBatchSize int
	// Cooldown is the minimum interval between the starts of two cycles.
	Cooldown time.Duration
	// DedupWindow is how long the ingestion buffer remembers an event key
	// for duplicate rejection. Zero means "same as Cooldown".
	DedupWindow time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	minConfidence := utils.GetEnvAsFloat("MIN_CONFIDENCE", 0.7, log)
	maxBatchSize := utils.GetEnvAsInt("MAX_BATCH_SIZE", 100, log)
	cooldown := utils.GetEnvAsDuration("COOLDOWN", 5*time.Minute, log)
	dedupWindow := utils.GetEnvAsDuration("DEDUP_WINDOW", 0, log)
	if dedupWindow <= 0 {
		dedupWindow = cooldown
	}
	return Config{
		MinConfidence: minConfidence,
		MaxBatchSize:  maxBatchSize,
		Cooldown:      cooldown,
		DedupWindow:   dedupWindow,
	}
}
