package cfg

import "time"

const (
	NotifyLog    = "log"
	NotifyDialog = "dialog"
	NotifyNone   = "none"
)

type Cfg struct {
	// Storage configuration
	StorageURL string
	RedisURL   string
	IndexPath  string

	// Application configuration
	CategoriesDir string
	Port          string
	BaseUrl       string
	WorkerCount   int
	Schedule      string
	SyncOnStart   bool
	FetchRetries  int
	RunTimeout    time.Duration
	APIAccessKey  string

	// Outputs
	XLSXPath     string
	CachePath    string
	Notify       string
	RedisChannel string

	// Run modes
	Once       bool
	Silent     bool
	ImportPath string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
