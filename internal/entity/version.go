package entity

import "time"

// Section is one structural unit of extracted text, e.g. "Sec. 3-12" or a heading.
type Section struct {
	ID      string `json:"id"`
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
}

// DocumentVersion mirrors the `document_versions` PostgreSQL table schema.
// Version numbers start at 1 and increase by one per (LocationID, DatapointID).
type DocumentVersion struct {
	LocationID  string
	DatapointID string
	Version     int
	ContentHash string
	TextHash    string
	Text        string
	Sections    []Section
	Title       string
	Author      string
	Citation    string
	Confidence  *float64
	CreatedAt   time.Time
}

// ChangeRecord mirrors the `change_records` PostgreSQL table schema.
// FromVersion is 0 for the record that introduces version 1.
type ChangeRecord struct {
	LocationID  string
	DatapointID string
	FromVersion int
	ToVersion   int
	Added       []string
	Removed     []string
	Modified    []string
	Patch       string
	DetectedAt  time.Time
}

// Empty reports whether the record lists no section changes.
func (c *ChangeRecord) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}
