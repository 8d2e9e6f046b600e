package recorder

import "time"

// QuoteFetchEvent describes one GetQuotes call.
type QuoteFetchEvent struct {
	Code     string
	Market   string
	Source   string // empty when every source was exhausted
	Attempts int
	Rows     int
	Outcome  string // "ok" or "empty"
	Duration time.Duration
}

// NewsCycleEvent describes one FetchAndSave call.
type NewsCycleEvent struct {
	RunID      string
	At         time.Time
	Fetched    int
	Saved      int
	Duplicates int
	Attempts   int
	Outcome    string // "ok", "failed" or "circuit_open"
	Error      string
	Duration   time.Duration
}

// Recorder persists an audit trail of acquisition activity.
type Recorder interface {
	RecordQuoteFetch(evt *QuoteFetchEvent) error
	RecordNewsCycle(evt *NewsCycleEvent) error
	RecentNewsCycles(limit int) ([]NewsCycleEvent, error)
	Close() error
}
