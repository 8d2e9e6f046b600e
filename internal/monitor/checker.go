// Package monitor reports the health of the news pipeline and serves
// operator commands.
package monitor

import (
	"fmt"
	"time"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/news"
)

// Freshness thresholds for the newest fetch_time.
const (
	DefaultStaleWarn  = 2 * time.Hour
	DefaultStaleIssue = 4 * time.Hour
	DefaultCheckFiles = 3
)

// SchedulerState is the read side of the news scheduler.
type SchedulerState interface {
	IsAlive() bool
	Interval() time.Duration
}

// IngestorState is the read side of the news ingestor.
type IngestorState interface {
	Status() news.Status
}

// Checker builds health reports from the scheduler, the ingestor counters
// and the most recent Daily News Files.
type Checker struct {
	Store      *news.Store
	Ingestor   IngestorState
	Scheduler  SchedulerState
	Files      int
	StaleWarn  time.Duration
	StaleIssue time.Duration

	now func() time.Time
}

// NewChecker creates a Checker with default thresholds.
func NewChecker(store *news.Store, ing IngestorState, sched SchedulerState) *Checker {
	return &Checker{
		Store:      store,
		Ingestor:   ing,
		Scheduler:  sched,
		Files:      DefaultCheckFiles,
		StaleWarn:  DefaultStaleWarn,
		StaleIssue: DefaultStaleIssue,
		now:        time.Now,
	}
}

// Check runs every rule and returns the report.
func (c *Checker) Check() model.HealthReport {
	now := c.now()
	st := c.Ingestor.Status()
	r := model.HealthReport{
		CheckedAt:           now,
		SchedulerAlive:      c.Scheduler.IsAlive(),
		SchedulerInterval:   c.Scheduler.Interval(),
		ConsecutiveFailures: st.ConsecutiveFailures,
		MaxFailures:         st.MaxFailures,
		LastSuccess:         st.LastSuccess,
		HashCount:           st.HashCount,
	}

	if !r.SchedulerAlive {
		r.Issues = append(r.Issues, "news scheduler is not running")
		r.Recommendations = append(r.Recommendations, "send /restart to start the scheduler")
	}
	if st.CircuitOpen() {
		r.Issues = append(r.Issues, fmt.Sprintf("news circuit open after %d consecutive failures", st.ConsecutiveFailures))
		r.Recommendations = append(r.Recommendations, "check the feed, then send /reset")
	} else if st.ConsecutiveFailures > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d consecutive failures", st.ConsecutiveFailures))
	}

	paths, err := c.Store.RecentFiles(c.Files)
	if err != nil {
		r.Issues = append(r.Issues, fmt.Sprintf("cannot list news files: %v", err))
		return r
	}
	if len(paths) == 0 {
		r.Issues = append(r.Issues, "no news files found")
		r.Recommendations = append(r.Recommendations, "send /fetch to run one cycle")
		return r
	}

	for _, p := range paths {
		fs := c.Store.Stat(p)
		r.Files = append(r.Files, fs)
		if fs.Err != "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s unreadable", fs.Name))
			continue
		}
		if fs.LatestFetch == "" {
			continue
		}
		t, err := time.ParseInLocation(news.FetchTimeLayout, fs.LatestFetch, c.Store.Location())
		if err == nil && t.After(r.LatestFetch) {
			r.LatestFetch = t
		}
	}

	switch age := now.Sub(r.LatestFetch); {
	case r.LatestFetch.IsZero():
		r.Issues = append(r.Issues, "no fetched news in recent files")
	case age > c.StaleIssue:
		r.Issues = append(r.Issues, fmt.Sprintf("latest news is %s old", age.Truncate(time.Minute)))
		r.Recommendations = append(r.Recommendations, "send /fetch and check the logs")
	case age > c.StaleWarn:
		r.Warnings = append(r.Warnings, fmt.Sprintf("latest news is %s old", age.Truncate(time.Minute)))
	}
	return r
}
