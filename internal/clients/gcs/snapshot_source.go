package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/synaptiq/insight-engine/internal/knowledge"
	"github.com/synaptiq/insight-engine/internal/logger"
)

// SnapshotSource reads knowledge snapshot objects from a bucket prefix, one
// fact per line per object. It satisfies knowledge.Source, so an unreadable
// bucket degrades to a skipped source in the merge report.
type SnapshotSource struct {
	client     *storage.Client
	bucket     string
	prefix     string
	sourceName string
	log        *logger.Logger
}

// NewSnapshotSourceFromEnv builds the source from GCS_SNAPSHOT_BUCKET and
// GCS_SNAPSHOT_PREFIX. Bucket unset means no object-storage source is
// configured; the caller gets (nil, nil).
func NewSnapshotSourceFromEnv(ctx context.Context, log *logger.Logger) (*SnapshotSource, error) {
	bucket := strings.TrimSpace(os.Getenv("GCS_SNAPSHOT_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	prefix := strings.TrimSpace(os.Getenv("GCS_SNAPSHOT_PREFIX"))

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: init client: %w", err)
	}
	return &SnapshotSource{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		sourceName: "gcs:" + bucket,
		log:        log.With("client", "GCSSnapshotSource"),
	}, nil
}

func (s *SnapshotSource) Name() string { return s.sourceName }

func (s *SnapshotSource) Items(ctx context.Context) ([]knowledge.SnapshotItem, error) {
	var items []knowledge.SnapshotItem
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list objects: %w", err)
		}
		objectItems, err := s.readObject(ctx, attrs.Name, attrs.Created)
		if err != nil {
			return nil, err
		}
		items = append(items, objectItems...)
	}
	return items, nil
}

func (s *SnapshotSource) readObject(ctx context.Context, name string, created time.Time) ([]knowledge.SnapshotItem, error) {
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: open %s: %w", name, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", name, err)
	}

	var items []knowledge.SnapshotItem
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, knowledge.SnapshotItem{Content: line, CreatedAt: created})
	}
	return items, nil
}

func (s *SnapshotSource) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
