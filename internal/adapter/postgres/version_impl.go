package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var _ repository.VersionRepository = (*VersionRepoImpl)(nil)

// VersionRepoImpl provides a concrete implementation for the VersionRepository interface using PostgreSQL.
type VersionRepoImpl struct {
	db *pgxpool.Pool
}

// NewVersionRepo creates a new instance of VersionRepoImpl.
func NewVersionRepo(db *pgxpool.Pool) *VersionRepoImpl {
	return &VersionRepoImpl{db: db}
}

const versionColumns = `location_id, datapoint_id, version, content_hash, text_hash, text, sections,
	title, author, citation, confidence, created_at`

func (r *VersionRepoImpl) Latest(ctx context.Context, locationID, datapointID string) (*entity.DocumentVersion, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE location_id = $1 AND datapoint_id = $2
		ORDER BY version DESC
		LIMIT 1`, locationID, datapointID)
	v, err := scanVersion(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

// Create writes the version and its change record in one transaction. The
// primary key on (location, datapoint, version) rejects a racing writer.
func (r *VersionRepoImpl) Create(ctx context.Context, v *entity.DocumentVersion, rec *entity.ChangeRecord) error {
	sections, err := json.Marshal(v.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	if v.Sections == nil {
		sections = []byte("[]")
	}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var latest int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM document_versions WHERE location_id = $1 AND datapoint_id = $2`,
			v.LocationID, v.DatapointID).Scan(&latest); err != nil {
			return err
		}
		if v.Version != latest+1 {
			return fmt.Errorf("version %d for %s/%s, expected %d: %w",
				v.Version, v.LocationID, v.DatapointID, latest+1, repository.ErrConflict)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO document_versions (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			v.LocationID, v.DatapointID, v.Version, v.ContentHash, v.TextHash, v.Text, sections,
			v.Title, v.Author, v.Citation, v.Confidence, v.CreatedAt); err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO change_records (location_id, datapoint_id, from_version, to_version, added, removed, modified, patch, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.LocationID, rec.DatapointID, rec.FromVersion, rec.ToVersion,
			nonNil(rec.Added), nonNil(rec.Removed), nonNil(rec.Modified), rec.Patch, rec.DetectedAt)
		return err
	})
	return mapErr(err)
}

func (r *VersionRepoImpl) List(ctx context.Context, locationID, datapointID string) ([]*entity.DocumentVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE location_id = $1 AND datapoint_id = $2
		ORDER BY version ASC`, locationID, datapointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*entity.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *VersionRepoImpl) Changes(ctx context.Context, locationID, datapointID string) ([]*entity.ChangeRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT location_id, datapoint_id, from_version, to_version, added, removed, modified, patch, detected_at
		FROM change_records
		WHERE location_id = $1 AND datapoint_id = $2
		ORDER BY to_version ASC`, locationID, datapointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*entity.ChangeRecord
	for rows.Next() {
		var c entity.ChangeRecord
		if err := rows.Scan(&c.LocationID, &c.DatapointID, &c.FromVersion, &c.ToVersion,
			&c.Added, &c.Removed, &c.Modified, &c.Patch, &c.DetectedAt); err != nil {
			return nil, err
		}
		records = append(records, &c)
	}
	return records, rows.Err()
}

func scanVersion(row pgx.Row) (*entity.DocumentVersion, error) {
	var (
		v        entity.DocumentVersion
		sections []byte
	)
	if err := row.Scan(&v.LocationID, &v.DatapointID, &v.Version, &v.ContentHash, &v.TextHash, &v.Text, &sections,
		&v.Title, &v.Author, &v.Citation, &v.Confidence, &v.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &v.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	return &v, nil
}
