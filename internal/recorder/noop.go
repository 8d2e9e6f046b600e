package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordQuoteFetch(_ *QuoteFetchEvent) error        { return nil }
func (n *NoopRecorder) RecordNewsCycle(_ *NewsCycleEvent) error          { return nil }
func (n *NoopRecorder) RecentNewsCycles(_ int) ([]NewsCycleEvent, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                     { return nil }
