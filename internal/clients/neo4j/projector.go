package neo4j

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/types"
)

// Projector mirrors persisted insights into the graph store as
// (Subject)-[:HAS_INSIGHT]->(Insight) so relationship queries do not go
// through the document store. Projection is a read model: MERGE keeps it
// idempotent under replays.
type Projector struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

// NewProjectorFromEnv connects using NEO4J_* env vars. NEO4J_URI unset means
// graph projection is disabled; the caller gets (nil, nil).
func NewProjectorFromEnv(log *logger.Logger) (*Projector, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4j: logger required")
	}

	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}
	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Projector{
		driver:   driver,
		database: database,
		log:      log.With("client", "Neo4jProjector"),
	}, nil
}

const projectInsightCypher = `
MERGE (s:Subject {id: $subject_id})
MERGE (i:Insight {fingerprint: $fingerprint})
ON CREATE SET i.statement = $statement,
              i.confidence = $confidence,
              i.generated_at = $generated_at
MERGE (s)-[:HAS_INSIGHT]->(i)`

func (p *Projector) ProjectInsights(ctx context.Context, insights []*types.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: p.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, ins := range insights {
			params := map[string]any{
				"subject_id":   ins.SubjectID,
				"fingerprint":  ins.StatementFingerprint,
				"statement":    ins.Statement,
				"confidence":   ins.Confidence,
				"generated_at": ins.GeneratedAt.UTC().Format(time.RFC3339),
			}
			if _, err := tx.Run(ctx, projectInsightCypher, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: project insights: %w", err)
	}
	return nil
}

func (p *Projector) Close(ctx context.Context) error {
	if p == nil || p.driver == nil {
		return nil
	}
	return p.driver.Close(ctx)
}
