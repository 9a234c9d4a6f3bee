package export

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/lysyi3m/job-comb/app/jobs"
)

// FileCache keeps a flat JSON copy of every snapshot keyed by category ID.
// The same layout is accepted by Load, including records written by older
// versions of the tool.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

func (c *FileCache) Path() string {
	return c.path
}

func (c *FileCache) Save(snapshots []jobs.Snapshot) error {
	doc := make(map[string][]map[string]any, len(snapshots))
	for _, snapshot := range snapshots {
		records := make([]map[string]any, 0, len(snapshot.Postings))
		for _, p := range snapshot.Postings {
			records = append(records, jobs.FlattenRecord(p))
		}
		doc[snapshot.CategoryID] = records
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", c.path, err)
	}

	return nil
}

// Load reads the cache file and returns one snapshot per category, ordered
// by category ID.
func (c *FileCache) Load() ([]jobs.Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc map[string][]map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode cache %s: %w", c.path, err)
	}

	snapshots := make([]jobs.Snapshot, 0, len(doc))
	for categoryID, records := range doc {
		postings := make([]jobs.Posting, 0, len(records))
		for _, record := range records {
			if record == nil {
				continue
			}
			postings = append(postings, jobs.MigrateRecord(record))
		}
		snapshots = append(snapshots, jobs.Snapshot{CategoryID: categoryID, Postings: postings})
	}

	slices.SortFunc(snapshots, func(a, b jobs.Snapshot) int {
		return cmp.Compare(a.CategoryID, b.CategoryID)
	})

	return snapshots, nil
}
