package entity

import "time"

// ArchivedSnapshot mirrors the `archived_snapshots` PostgreSQL table schema.
type ArchivedSnapshot struct {
	URLHash    string
	URL        string
	SnapshotID string
	ArchiveURI string
	ArchivedAt time.Time
}

// FreshAt reports whether the snapshot was taken in the same calendar year as now.
func (s *ArchivedSnapshot) FreshAt(now time.Time) bool {
	return s.ArchivedAt.UTC().Year() == now.UTC().Year()
}
