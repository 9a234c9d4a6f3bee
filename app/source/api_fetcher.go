package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lysyi3m/job-comb/app/jobs"
)

// APIFetcher reads postings from a JSON search endpoint. The postings array
// is located by the target's dotted list path.
type APIFetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewAPIFetcher(httpClient *http.Client, userAgent string) *APIFetcher {
	return &APIFetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (f *APIFetcher) Fetch(ctx context.Context, category *jobs.Category) ([]map[string]any, error) {
	data, err := fetchBody(ctx, f.httpClient, f.userAgent, category.Target)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return extractList(payload, category.Target.ListPath)
}

func extractList(payload any, listPath string) ([]map[string]any, error) {
	current := payload
	if listPath != "" {
		for _, key := range strings.Split(listPath, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("response has no object at %q", key)
			}
			current, ok = obj[key]
			if !ok {
				return nil, fmt.Errorf("response is missing %q", listPath)
			}
		}
	}

	if current == nil {
		return nil, nil
	}

	list, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("%q is not a list", listPath)
	}

	records := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if record, ok := entry.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records, nil
}
