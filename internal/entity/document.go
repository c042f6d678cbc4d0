package entity

import "time"

// Format is the detected format of a fetched payload.
type Format string

const (
	FormatHTML        Format = "HTML"
	FormatPDF         Format = "PDF"
	FormatDOC         Format = "DOC"
	FormatDOCX        Format = "DOCX"
	FormatXLSX        Format = "XLSX"
	FormatUnsupported Format = "UNSUPPORTED"
)

// DocumentStatus records how far a document got through extraction.
type DocumentStatus string

const (
	DocumentFetched          DocumentStatus = "FETCHED"
	DocumentExtracted        DocumentStatus = "EXTRACTED"
	DocumentExtractionFailed DocumentStatus = "EXTRACTION_FAILED"
	DocumentUnsupported      DocumentStatus = "UNSUPPORTED"
)

// Document mirrors the `documents` PostgreSQL table schema.
// ContentHash is the SHA-256 of the raw bytes and is the primary key; a
// document holds either Inline bytes or a BlobRef, never both.
type Document struct {
	ContentHash      string
	SourceURL        string
	URLHash          string
	SnapshotID       string
	Format           Format
	ContentType      string
	Size             int64
	Inline           []byte
	BlobRef          string
	Status           DocumentStatus
	FailureKind      string
	UnarchivedSource bool
	FetchedAt        time.Time
}
