// Package storage archives raw scraper datasets to object storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
)

// ErrDatasetNotFound is returned when no archive exists for a run.
var ErrDatasetNotFound = errors.New("archived dataset not found")

// ArchivedDataset is the JSON document written for each scraper run.
type ArchivedDataset struct {
	RunID      string                      `json:"run_id"`
	PostURL    string                      `json:"post_url"`
	ArchivedAt time.Time                   `json:"archived_at"`
	ItemCount  int                         `json:"item_count"`
	Items      []analytics.ScrapedReaction `json:"items"`
}

// DatasetArchive stores and retrieves raw scraper datasets by run id.
type DatasetArchive interface {
	Archive(ctx context.Context, runID, postURL string, items []analytics.ScrapedReaction) (string, error)
	Load(ctx context.Context, runID string) (*ArchivedDataset, error)
}

// DatasetKey returns the object key of a run's dataset under prefix.
func DatasetKey(prefix, runID string) string {
	return path.Join(strings.Trim(prefix, "/"), "datasets", runID+".json")
}

func encodeDataset(runID, postURL string, items []analytics.ScrapedReaction) ([]byte, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if items == nil {
		items = []analytics.ScrapedReaction{}
	}
	data, err := json.Marshal(ArchivedDataset{
		RunID:      runID,
		PostURL:    postURL,
		ArchivedAt: time.Now().UTC(),
		ItemCount:  len(items),
		Items:      items,
	})
	if err != nil {
		return nil, fmt.Errorf("encode dataset %s: %w", runID, err)
	}
	return data, nil
}

func decodeDataset(runID string, data []byte) (*ArchivedDataset, error) {
	var ds ArchivedDataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", runID, err)
	}
	return &ds, nil
}

// MemoryArchive keeps datasets in process memory. It backs tests and runs
// with object storage disabled.
type MemoryArchive struct {
	prefix  string
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArchive creates an empty MemoryArchive
func NewMemoryArchive(prefix string) *MemoryArchive {
	return &MemoryArchive{prefix: prefix, objects: make(map[string][]byte)}
}

// Archive stores the dataset and returns its key
func (m *MemoryArchive) Archive(_ context.Context, runID, postURL string, items []analytics.ScrapedReaction) (string, error) {
	data, err := encodeDataset(runID, postURL, items)
	if err != nil {
		return "", err
	}
	key := DatasetKey(m.prefix, runID)
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return key, nil
}

// Load returns a stored dataset
func (m *MemoryArchive) Load(_ context.Context, runID string) (*ArchivedDataset, error) {
	m.mu.RLock()
	data, ok := m.objects[DatasetKey(m.prefix, runID)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrDatasetNotFound
	}
	return decodeDataset(runID, data)
}

// Len returns the number of archived datasets
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var (
	_ DatasetArchive = (*MemoryArchive)(nil)
	_ DatasetArchive = (*S3DatasetArchive)(nil)
)
