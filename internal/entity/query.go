package entity

import "time"

// QueryStatus tracks a query through the search state machine.
type QueryStatus string

const (
	QueryPending              QueryStatus = "PENDING"
	QueryRunning              QueryStatus = "RUNNING"
	QueryCompletedWithResults QueryStatus = "COMPLETED_WITH_RESULTS"
	QueryCompletedNoResults   QueryStatus = "COMPLETED_NO_RESULTS"
	QueryFailed               QueryStatus = "FAILED"
)

// Completed reports whether the status is one of the two terminal success states.
func (s QueryStatus) Completed() bool {
	return s == QueryCompletedWithResults || s == QueryCompletedNoResults
}

// Query mirrors the `queries` PostgreSQL table schema.
// Hash, LocationID, DatapointID, Platform, Text and CreatedAt never change after
// creation. Status, LastRunAt, ResultCount, Attempts and LastError are owned by
// the search orchestrator.
type Query struct {
	Hash        string
	LocationID  string
	DatapointID string
	Platform    Platform
	Text        string
	Status      QueryStatus
	LastRunAt   *time.Time
	ResultCount int
	Attempts    int
	LastError   string
	CreatedAt   time.Time
}

// FreshAt reports whether a completed run is still inside the freshness window.
func (q *Query) FreshAt(now time.Time, window time.Duration) bool {
	if !q.Status.Completed() || q.LastRunAt == nil {
		return false
	}
	return now.Sub(*q.LastRunAt) < window
}

// SearchHit is a single organic result as returned by a search engine.
type SearchHit struct {
	URL   string
	Title string
}

// SearchResult mirrors the `search_results` PostgreSQL table schema.
type SearchResult struct {
	QueryHash    string
	URL          string
	URLHash      string
	Title        string
	Rank         int
	DiscoveredAt time.Time
}
