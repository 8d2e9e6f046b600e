package model

import "time"

// NewsItem is one deduplicated entry of a Daily News File. The JSON keys are
// the on-disk format read by downstream summarizers.
type NewsItem struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Datetime  string `json:"datetime"`
	FetchTime string `json:"fetch_time"`
	Hash      string `json:"hash"`
}

// RawNewsEntry is one entry as returned by a news feed.
type RawNewsEntry struct {
	Title   string
	Content string
	Date    string // 2006-01-02
	Time    string // 15:04:05
}

// NewsFileStatus summarizes one Daily News File.
type NewsFileStatus struct {
	Name        string
	Size        int64
	ModTime     time.Time
	Items       int
	LatestFetch string
	Err         string
}

// HealthReport is the operator view of the news pipeline.
type HealthReport struct {
	CheckedAt           time.Time
	SchedulerAlive      bool
	SchedulerInterval   time.Duration
	ConsecutiveFailures int
	MaxFailures         int
	LastSuccess         time.Time
	HashCount           int
	Files               []NewsFileStatus
	LatestFetch         time.Time
	Issues              []string
	Warnings            []string
	Recommendations     []string
}

// Healthy reports whether the check found no issues.
func (r *HealthReport) Healthy() bool {
	return len(r.Issues) == 0
}
