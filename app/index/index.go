package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/lysyi3m/job-comb/app/jobs"
)

// Index is a bleve full-text index over posting text, keyed by category
// and fingerprint.
type Index struct {
	index bleve.Index
}

type document struct {
	Category    string
	Title       string
	Description string
	Requirement string
	Location    string
	Team        string
}

// Open opens the index at path, creating it when missing.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// OpenInMemory creates an index that lives only as long as the process.
func OpenInMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	categoryFieldMapping := bleve.NewTextFieldMapping()
	categoryFieldMapping.Analyzer = keyword.Name
	categoryFieldMapping.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Category", categoryFieldMapping)
	docMapping.AddFieldMappingsAt("Title", textFieldMapping)
	docMapping.AddFieldMappingsAt("Description", textFieldMapping)
	docMapping.AddFieldMappingsAt("Requirement", textFieldMapping)
	docMapping.AddFieldMappingsAt("Location", textFieldMapping)
	docMapping.AddFieldMappingsAt("Team", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

// IndexSnapshot adds or refreshes every posting of a snapshot.
func (i *Index) IndexSnapshot(ctx context.Context, snapshot jobs.Snapshot) error {
	batch := i.index.NewBatch()
	for _, p := range snapshot.Postings {
		doc := document{
			Category:    snapshot.CategoryID,
			Title:       p.Title(),
			Description: p.String("description"),
			Requirement: p.String("requirement"),
			Location:    p.String("city_list"),
			Team:        p.String("team_name"),
		}
		if err := batch.Index(docID(snapshot.CategoryID, p.Fingerprint()), doc); err != nil {
			return fmt.Errorf("index posting: %w", err)
		}

		if batch.Size() >= 500 {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("index batch: %w", err)
			}
			batch.Reset()
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
	}

	return nil
}

// Search returns the fingerprints of postings matching every term of text.
func (i *Index) Search(ctx context.Context, text string, limit int) ([]string, error) {
	q := bleve.NewMatchQuery(text)
	q.SetOperator(query.MatchQueryOperatorAnd)

	request := bleve.NewSearchRequestOptions(q, limit, 0, false)

	results, err := i.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	seen := make(map[string]bool, len(results.Hits))
	fingerprints := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		_, fingerprint, ok := strings.Cut(hit.ID, "/")
		if !ok || seen[fingerprint] {
			continue
		}
		seen[fingerprint] = true
		fingerprints = append(fingerprints, fingerprint)
	}

	return fingerprints, nil
}

func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

func docID(categoryID, fingerprint string) string {
	return categoryID + "/" + fingerprint
}
