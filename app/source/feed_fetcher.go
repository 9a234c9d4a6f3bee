package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"net/http"

	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/mmcdole/gofeed"
)

// FeedFetcher turns the items of an RSS or Atom job board feed into raw
// posting records shaped like the search API's.
type FeedFetcher struct {
	httpClient   *http.Client
	userAgent    string
	gofeedParser *gofeed.Parser
}

func NewFeedFetcher(httpClient *http.Client, userAgent string) *FeedFetcher {
	return &FeedFetcher{
		httpClient:   httpClient,
		userAgent:    userAgent,
		gofeedParser: gofeed.NewParser(),
	}
}

func (f *FeedFetcher) Fetch(ctx context.Context, category *jobs.Category) ([]map[string]any, error) {
	data, err := fetchBody(ctx, f.httpClient, f.userAgent, category.Target)
	if err != nil {
		return nil, err
	}

	feed, err := f.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	records := make([]map[string]any, 0, len(feed.Items))
	for _, item := range feed.Items {
		records = append(records, itemRecord(item))
	}
	return records, nil
}

func itemRecord(item *gofeed.Item) map[string]any {
	record := map[string]any{
		"code":        cmp.Or(item.GUID, item.Link),
		"title":       item.Title,
		"description": item.Description,
		"pc_job_url":  item.Link,
	}

	if item.Content != "" && item.Content != item.Description {
		record["requirement"] = item.Content
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published != nil {
		record["publish_time"] = float64(published.UnixMilli())
	}

	if len(item.Categories) > 0 {
		record["job_category"] = item.Categories[0]
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		record["team_name"] = item.Authors[0].Name
	}

	return record
}
