package jobs

import (
	"time"
)

const PublishTimeLayout = "2006-01-02 15:04:05"

// Posting types

// Fields holds the normalized attributes of a posting. A missing key means
// the source did not provide the value; nil and empty strings are never
// stored.
type Fields map[string]any

type Posting struct {
	Fields      Fields
	FirstSeenAt *time.Time
	IsNew       *bool // nil when unknown, e.g. records written before the flag existed
}

type Snapshot struct {
	CategoryID string
	Postings   []Posting
}

type Summary struct {
	CategoryID string `json:"category"`
	Label      string `json:"label"`
	NewCount   int    `json:"new_count"`
	TotalCount int    `json:"total_count"`
}

// Result is the outcome of reconciling one fetched batch against a snapshot.
type Result struct {
	Snapshot  Snapshot
	Summary   Summary
	Preserved bool // prior snapshot returned untouched, nothing to write
}

// Configuration types

type Category struct {
	ID          string           // Derived from filename (without .yml extension)
	Label       string           `yaml:"label"`
	Order       int              `yaml:"order"`
	Target      Target           `yaml:"target"`
	ExtraFields []string         `yaml:"extra_fields"`
	Settings    CategorySettings `yaml:"settings"`
}

type Target struct {
	Kind     string            `yaml:"kind"` // api or feed
	URL      string            `yaml:"url"`
	Method   string            `yaml:"method"`
	Headers  map[string]string `yaml:"headers"`
	Body     string            `yaml:"body"`
	ListPath string            `yaml:"list_path"` // dotted path to the postings array in API responses
}

type CategorySettings struct {
	Enabled bool `yaml:"enabled"`
	Timeout int  `yaml:"timeout"` // seconds
}

const (
	TargetKindAPI  = "api"
	TargetKindFeed = "feed"
)

func (p Posting) String(key string) string {
	return fieldString(p.Fields[key])
}

func (p Posting) Title() string {
	return p.String("title")
}

func (p Posting) Code() string {
	return p.String("code")
}

func (p Posting) Fingerprint() string {
	return Fingerprint(p.Fields)
}

// PublishTime parses the publish_time field in the local zone.
func (p Posting) PublishTime() (time.Time, bool) {
	raw := p.String("publish_time")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(PublishTimeLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (p Posting) New() bool {
	return p.IsNew != nil && *p.IsNew
}

func boolPtr(b bool) *bool {
	return &b
}
