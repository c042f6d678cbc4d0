package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.SnapshotRepository = (*SnapshotRepoImpl)(nil)
	_ repository.DocumentRepository = (*DocumentRepoImpl)(nil)
)

// SnapshotRepoImpl provides a concrete implementation for the SnapshotRepository interface using PostgreSQL.
type SnapshotRepoImpl struct {
	db *pgxpool.Pool
}

// NewSnapshotRepo creates a new instance of SnapshotRepoImpl.
func NewSnapshotRepo(db *pgxpool.Pool) *SnapshotRepoImpl {
	return &SnapshotRepoImpl{db: db}
}

func (r *SnapshotRepoImpl) Upsert(ctx context.Context, s *entity.ArchivedSnapshot) error {
	query := `
		INSERT INTO archived_snapshots (url_hash, snapshot_id, url, archive_uri, archived_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url_hash, snapshot_id) DO NOTHING;
	`
	_, err := r.db.Exec(ctx, query, s.URLHash, s.SnapshotID, s.URL, s.ArchiveURI, s.ArchivedAt)
	return err
}

func (r *SnapshotRepoImpl) LatestByURLHash(ctx context.Context, urlHash string) (*entity.ArchivedSnapshot, error) {
	query := `
		SELECT url_hash, snapshot_id, url, archive_uri, archived_at
		FROM archived_snapshots
		WHERE url_hash = $1
		ORDER BY archived_at DESC
		LIMIT 1;
	`
	var s entity.ArchivedSnapshot
	err := r.db.QueryRow(ctx, query, urlHash).Scan(&s.URLHash, &s.SnapshotID, &s.URL, &s.ArchiveURI, &s.ArchivedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// DocumentRepoImpl provides a concrete implementation for the DocumentRepository interface using PostgreSQL.
// Rows are keyed by content hash; document_sources maps each URL to the document it last produced.
type DocumentRepoImpl struct {
	db *pgxpool.Pool
}

// NewDocumentRepo creates a new instance of DocumentRepoImpl.
func NewDocumentRepo(db *pgxpool.Pool) *DocumentRepoImpl {
	return &DocumentRepoImpl{db: db}
}

const documentColumns = `d.content_hash, d.source_url, d.url_hash, d.snapshot_id, d.format, d.content_type, d.size,
	d.inline, d.blob_ref, d.status, d.failure_kind, d.unarchived_source, d.fetched_at`

// Create inserts the document unless its content hash exists, and points the
// URL at it either way.
func (r *DocumentRepoImpl) Create(ctx context.Context, d *entity.Document) (bool, error) {
	var created bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO documents (content_hash, source_url, url_hash, snapshot_id, format, content_type, size,
				inline, blob_ref, status, failure_kind, unarchived_source, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (content_hash) DO NOTHING`,
			d.ContentHash, d.SourceURL, d.URLHash, d.SnapshotID, string(d.Format), d.ContentType, d.Size,
			d.Inline, d.BlobRef, string(d.Status), d.FailureKind, d.UnarchivedSource, d.FetchedAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1

		_, err = tx.Exec(ctx, `
			INSERT INTO document_sources (url_hash, content_hash, fetched_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (url_hash) DO UPDATE SET
				content_hash = EXCLUDED.content_hash,
				fetched_at = EXCLUDED.fetched_at`,
			d.URLHash, d.ContentHash, d.FetchedAt)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *DocumentRepoImpl) FindByHash(ctx context.Context, contentHash string) (*entity.Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.content_hash = $1`, contentHash)
	return scanDocument(row)
}

func (r *DocumentRepoImpl) LatestByURLHash(ctx context.Context, urlHash string) (*entity.Document, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM document_sources s
		JOIN documents d ON d.content_hash = s.content_hash
		WHERE s.url_hash = $1`, urlHash)
	return scanDocument(row)
}

func (r *DocumentRepoImpl) UpdateStatus(ctx context.Context, contentHash string, status entity.DocumentStatus, failureKind string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, failure_kind = $3 WHERE content_hash = $1`,
		contentHash, string(status), failureKind)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var (
		d              entity.Document
		format, status string
	)
	err := row.Scan(&d.ContentHash, &d.SourceURL, &d.URLHash, &d.SnapshotID, &format, &d.ContentType, &d.Size,
		&d.Inline, &d.BlobRef, &status, &d.FailureKind, &d.UnarchivedSource, &d.FetchedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	d.Format = entity.Format(format)
	d.Status = entity.DocumentStatus(status)
	return &d, nil
}
