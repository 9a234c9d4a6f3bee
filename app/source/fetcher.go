package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lysyi3m/job-comb/app/jobs"
)

// Fetcher retrieves the raw posting records currently listed for a category.
type Fetcher interface {
	Fetch(ctx context.Context, category *jobs.Category) ([]map[string]any, error)
}

var _ Fetcher = (*Registry)(nil)

// Registry dispatches to a fetcher by target kind.
type Registry struct {
	fetchers map[string]Fetcher
}

func NewRegistry(httpClient *http.Client, userAgent string) *Registry {
	return &Registry{
		fetchers: map[string]Fetcher{
			jobs.TargetKindAPI:  NewAPIFetcher(httpClient, userAgent),
			jobs.TargetKindFeed: NewFeedFetcher(httpClient, userAgent),
		},
	}
}

func (r *Registry) Fetch(ctx context.Context, category *jobs.Category) ([]map[string]any, error) {
	fetcher, ok := r.fetchers[category.Target.Kind]
	if !ok {
		return nil, fmt.Errorf("no fetcher for target kind %q", category.Target.Kind)
	}
	return fetcher.Fetch(ctx, category)
}

func fetchBody(ctx context.Context, httpClient *http.Client, userAgent string, target jobs.Target) ([]byte, error) {
	var body io.Reader
	if target.Body != "" {
		body = strings.NewReader(target.Body)
	}

	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
