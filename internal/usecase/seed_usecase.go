package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

// SeedReport counts what a seed load wrote and skipped.
type SeedReport struct {
	Locations  int
	Datapoints int
	Skipped    int
}

// Seeder validates and stores reference data.
type Seeder struct {
	locations  repository.LocationRepository
	datapoints repository.DatapointRepository
	validator  *Validator
	logger     *zap.Logger
}

func NewSeeder(locations repository.LocationRepository, datapoints repository.DatapointRepository, validator *Validator, logger *zap.Logger) *Seeder {
	if validator == nil {
		validator = NewValidator()
	}
	return &Seeder{locations: locations, datapoints: datapoints, validator: validator, logger: logger}
}

// Seed upserts every valid record. Invalid records are logged and skipped;
// storage errors stop the load.
func (s *Seeder) Seed(ctx context.Context, locs []*entity.Location, dps []*entity.Datapoint) (SeedReport, error) {
	var rep SeedReport
	for _, loc := range locs {
		if err := s.validator.Location(loc); err != nil {
			rep.Skipped++
			s.logger.Warn("Skipping invalid location", zap.String("id", loc.ID), zap.Error(err))
			continue
		}
		if err := s.locations.Upsert(ctx, loc); err != nil {
			return rep, fmt.Errorf("failed to upsert location %s: %w", loc.ID, err)
		}
		rep.Locations++
	}
	for _, dp := range dps {
		if err := s.validator.Datapoint(dp); err != nil {
			rep.Skipped++
			s.logger.Warn("Skipping invalid datapoint", zap.String("id", dp.ID), zap.Error(err))
			continue
		}
		if err := s.datapoints.Upsert(ctx, dp); err != nil {
			return rep, fmt.Errorf("failed to upsert datapoint %s: %w", dp.ID, err)
		}
		rep.Datapoints++
	}
	s.logger.Info("Seeded reference data",
		zap.Int("locations", rep.Locations),
		zap.Int("datapoints", rep.Datapoints),
		zap.Int("skipped", rep.Skipped))
	return rep, nil
}
