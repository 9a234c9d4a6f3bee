package jobs

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrCategoryNotFound = errors.New("category not found")

type CategoryCache struct {
	categoriesDir string
	cache         map[string]*Category
	mu            sync.RWMutex
}

func NewCategoryCache(categoriesDir string) *CategoryCache {
	return &CategoryCache{
		categoriesDir: categoriesDir,
		cache:         make(map[string]*Category),
	}
}

func (cc *CategoryCache) Run() error {
	if _, err := os.Stat(cc.categoriesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.categoriesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		categoryID := strings.TrimSuffix(filepath.Base(file), ".yml")

		category, err := cc.loadCategory(categoryID)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Category loaded", "category", categoryID, "label", category.Label, "kind", category.Target.Kind, "enabled", category.Settings.Enabled)
	}

	return nil
}

func (cc *CategoryCache) loadCategory(categoryID string) (*Category, error) {
	categoryFile := filepath.Join(cc.categoriesDir, categoryID+".yml")
	category, err := cc.parseCategory(categoryFile)
	if err != nil {
		return nil, err
	}

	category.ID = categoryID

	if err := cc.validateCategory(category); err != nil {
		return nil, fmt.Errorf("invalid category %s: %w", categoryFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[category.ID] = category

	return category, nil
}

func (cc *CategoryCache) GetCategory(categoryID string) (*Category, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	category, ok := cc.cache[categoryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
	}
	return category, nil
}

// GetCategories returns all categories ordered by (Order, ID).
func (cc *CategoryCache) GetCategories() []*Category {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	categories := make([]*Category, 0, len(cc.cache))
	for _, category := range cc.cache {
		categories = append(categories, category)
	}
	sortCategories(categories)
	return categories
}

func (cc *CategoryCache) GetEnabledCategories() []*Category {
	var enabled []*Category
	for _, category := range cc.GetCategories() {
		if category.Settings.Enabled {
			enabled = append(enabled, category)
		}
	}
	return enabled
}

func (cc *CategoryCache) GetCategoryCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// Label returns the display label of a category, or its ID if unknown.
func (cc *CategoryCache) Label(categoryID string) string {
	if category, err := cc.GetCategory(categoryID); err == nil {
		return category.Label
	}
	return categoryID
}

func (cc *CategoryCache) parseCategory(categoryFile string) (*Category, error) {
	data, err := os.ReadFile(categoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	category := Category{Settings: CategorySettings{Enabled: true}}
	if err := yaml.Unmarshal(data, &category); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if category.Target.Kind == "" {
		category.Target.Kind = TargetKindAPI
	}
	if category.Target.Method == "" {
		category.Target.Method = "GET"
	}
	category.Target.Method = strings.ToUpper(category.Target.Method)
	if category.Target.ListPath == "" {
		category.Target.ListPath = "data.job_post_list"
	}
	if category.Settings.Timeout == 0 {
		category.Settings.Timeout = 30
	}

	return &category, nil
}

func (cc *CategoryCache) validateCategory(category *Category) error {
	if category == nil {
		return fmt.Errorf("category is nil")
	}

	requiredFields := map[string]string{
		"label":      category.Label,
		"target URL": category.Target.URL,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if category.Settings.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	switch category.Target.Kind {
	case TargetKindAPI, TargetKindFeed:
	default:
		return fmt.Errorf("unsupported target kind: %s", category.Target.Kind)
	}

	for i, field := range category.ExtraFields {
		if field == "" {
			return fmt.Errorf("extra field at index %d is empty", i)
		}
	}

	return nil
}

func sortCategories(categories []*Category) {
	slices.SortFunc(categories, func(a, b *Category) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
}
