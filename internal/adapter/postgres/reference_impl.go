package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.LocationRepository  = (*LocationRepoImpl)(nil)
	_ repository.DatapointRepository = (*DatapointRepoImpl)(nil)
)

// LocationRepoImpl provides a concrete implementation for the LocationRepository interface using PostgreSQL.
type LocationRepoImpl struct {
	db *pgxpool.Pool
}

// NewLocationRepo creates a new instance of LocationRepoImpl.
func NewLocationRepo(db *pgxpool.Pool) *LocationRepoImpl {
	return &LocationRepoImpl{db: db}
}

// Upsert inserts a location or refreshes its descriptive fields. Locations are never deleted.
func (r *LocationRepoImpl) Upsert(ctx context.Context, loc *entity.Location) error {
	query := `
		INSERT INTO locations (id, name, state, platform, domains, seed_urls, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			platform = EXCLUDED.platform,
			domains = EXCLUDED.domains,
			seed_urls = EXCLUDED.seed_urls,
			updated_at = NOW();
	`
	_, err := r.db.Exec(ctx, query,
		loc.ID, loc.Name, loc.State, string(loc.Platform), nonNil(loc.Domains), nonNil(loc.SeedURLs))
	return err
}

func (r *LocationRepoImpl) FindByID(ctx context.Context, id string) (*entity.Location, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, name, state, platform, domains, seed_urls FROM locations WHERE id = $1`, id)
	loc, err := scanLocation(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return loc, nil
}

func (r *LocationRepoImpl) List(ctx context.Context) ([]*entity.Location, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, state, platform, domains, seed_urls FROM locations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []*entity.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

func scanLocation(row pgx.Row) (*entity.Location, error) {
	var (
		loc      entity.Location
		platform string
	)
	if err := row.Scan(&loc.ID, &loc.Name, &loc.State, &platform, &loc.Domains, &loc.SeedURLs); err != nil {
		return nil, err
	}
	loc.Platform = entity.Platform(platform)
	return &loc, nil
}

// DatapointRepoImpl provides a concrete implementation for the DatapointRepository interface using PostgreSQL.
type DatapointRepoImpl struct {
	db *pgxpool.Pool
}

// NewDatapointRepo creates a new instance of DatapointRepoImpl.
func NewDatapointRepo(db *pgxpool.Pool) *DatapointRepoImpl {
	return &DatapointRepoImpl{db: db}
}

func (r *DatapointRepoImpl) Upsert(ctx context.Context, dp *entity.Datapoint) error {
	query := `
		INSERT INTO datapoints (id, name, synonyms, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			synonyms = EXCLUDED.synonyms,
			updated_at = NOW();
	`
	_, err := r.db.Exec(ctx, query, dp.ID, dp.Name, nonNil(dp.Synonyms))
	return err
}

func (r *DatapointRepoImpl) FindByID(ctx context.Context, id string) (*entity.Datapoint, error) {
	var dp entity.Datapoint
	err := r.db.QueryRow(ctx, `SELECT id, name, synonyms FROM datapoints WHERE id = $1`, id).
		Scan(&dp.ID, &dp.Name, &dp.Synonyms)
	if err != nil {
		return nil, mapErr(err)
	}
	return &dp, nil
}

func (r *DatapointRepoImpl) List(ctx context.Context) ([]*entity.Datapoint, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, synonyms FROM datapoints ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dps []*entity.Datapoint
	for rows.Next() {
		var dp entity.Datapoint
		if err := rows.Scan(&dp.ID, &dp.Name, &dp.Synonyms); err != nil {
			return nil, err
		}
		dps = append(dps, &dp)
	}
	return dps, rows.Err()
}
