package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/synaptiq/insight-engine/internal/app"
	gcsclient "github.com/synaptiq/insight-engine/internal/clients/gcs"
	neo4jclient "github.com/synaptiq/insight-engine/internal/clients/neo4j"
	redisclient "github.com/synaptiq/insight-engine/internal/clients/redis"
	"github.com/synaptiq/insight-engine/internal/db"
	"github.com/synaptiq/insight-engine/internal/ingest"
	"github.com/synaptiq/insight-engine/internal/insight"
	"github.com/synaptiq/insight-engine/internal/knowledge"
	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/observability"
	"github.com/synaptiq/insight-engine/internal/repos"
	"github.com/synaptiq/insight-engine/internal/scheduler"
	"github.com/synaptiq/insight-engine/internal/services"
	"github.com/synaptiq/insight-engine/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := app.LoadConfig(log)
	log.Info("Config loaded",
		"min_confidence", cfg.MinConfidence,
		"max_batch_size", cfg.MaxBatchSize,
		"cooldown", cfg.Cooldown,
		"dedup_window", cfg.DedupWindow,
	)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	eventRepo := repos.NewEventRepo(thePG, log)
	insightRepo := repos.NewInsightRepo(thePG, log)
	knowledgeRepo := repos.NewKnowledgeItemRepo(thePG, log)

	// Optional clients
	cycleBus, err := redisclient.NewCycleBus(log)
	if err != nil {
		log.Warn("Redis cycle bus init failed, continuing without it", "error", err)
	}
	projector, err := neo4jclient.NewProjectorFromEnv(log)
	if err != nil {
		log.Warn("Neo4j projector init failed, continuing without it", "error", err)
	}
	if projector != nil {
		defer projector.Close(context.Background())
	}

	// Knowledge merge on startup: canonical store first, then the
	// supplementary sources in precedence order.
	engine := knowledge.NewEngine(log, knowledgeRepo)
	sources := []knowledge.Source{
		&knowledge.RepoSource{SourceName: "canonical", Repo: knowledgeRepo, DB: thePG},
	}
	for i, path := range snapshotFilePaths(log) {
		sources = append(sources, &knowledge.FileSource{
			SourceName: fmt.Sprintf("file_%d", i),
			Path:       path,
		})
	}
	gcsSource, err := gcsclient.NewSnapshotSourceFromEnv(ctx, log)
	if err != nil {
		log.Warn("GCS snapshot source init failed, continuing without it", "error", err)
	}
	if gcsSource != nil {
		defer gcsSource.Close()
		sources = append(sources, gcsSource)
	}

	canonical, report := engine.Merge(ctx, sources)
	if err := engine.Store(ctx, canonical); err != nil {
		log.Error("Canonical store write failed", "error", err)
	}
	if cycleBus != nil {
		if err := cycleBus.PublishMergeReport(ctx, report); err != nil {
			log.Warn("Merge report publish failed", "error", err)
		}
	}

	// Reasoner
	reasoner, err := services.NewOpenAIReasoner(log)
	if err != nil {
		log.Fatal("Reasoner init failed", "error", err)
	}

	// Ingestion buffer with durable queue flusher
	buffer := ingest.NewBuffer(log, cfg.DedupWindow)
	buffer.StartFlusher(ctx, eventRepo)

	// Learning cycle
	metrics := observability.NewMetrics()
	applier := insight.NewFeedbackApplier(log, insightRepo)
	generator := insight.NewGenerator(log, reasoner, applier, cfg.MinConfidence)
	coordinator := insight.NewCoordinator(log, insightRepo, cfg.MinConfidence)
	var busAdapter scheduler.SummaryPublisher
	if cycleBus != nil {
		busAdapter = cycleBus
	}
	var projectorAdapter scheduler.InsightProjector
	if projector != nil {
		projectorAdapter = projector
	}
	sched := scheduler.NewScheduler(log, cfg, scheduler.NewState(), buffer,
		generator, coordinator, projectorAdapter, busAdapter, metrics)

	interval := utils.GetEnvAsDuration("SCHEDULE_INTERVAL", time.Minute, log)
	sched.Start(ctx, interval)
	log.Info("Insight engine running", "schedule_interval", interval)

	<-ctx.Done()
	log.Info("Shutting down", "counters", metrics.Snapshot())
	if cycleBus != nil {
		_ = cycleBus.Close()
	}
}

func snapshotFilePaths(log *logger.Logger) []string {
	raw := utils.GetEnv("KNOWLEDGE_SNAPSHOT_FILES", "", log)
	if raw == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
