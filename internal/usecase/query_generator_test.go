package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/adapter/memory"
	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/pkg/apperr"
)

func TestBuildQueryText(t *testing.T) {
	dp := salesTax()
	tests := []struct {
		name     string
		loc      *entity.Location
		platform entity.Platform
		want     string
	}{
		{
			name:     "municode",
			loc:      &entity.Location{ID: "1", Name: "Los Angeles", State: "CA"},
			platform: entity.PlatformMunicode,
			want:     `("sales tax" OR "local sales tax" OR "sales and use tax") site:library.municode.com/ca/los_angeles`,
		},
		{
			name:     "american legal",
			loc:      &entity.Location{ID: "1", Name: "Los Angeles", State: "CA"},
			platform: entity.PlatformAmericanLegal,
			want:     `("sales tax" OR "local sales tax" OR "sales and use tax") site:codelibrary.amlegal.com/codes/losangeles`,
		},
		{
			name:     "general code",
			loc:      &entity.Location{ID: "1", Name: "Town  of Greece", State: "ny"},
			platform: entity.PlatformGeneralCode,
			want:     `"Town of Greece" NY ("sales tax" OR "local sales tax" OR "sales and use tax") site:ecode360.com`,
		},
		{
			name:     "generic with domain",
			loc:      &entity.Location{ID: "1", Name: "Springfield", State: "IL", Domains: []string{"Springfield.IL.us"}},
			platform: entity.PlatformGeneric,
			want:     `"Springfield" IL ("sales tax" OR "local sales tax" OR "sales and use tax") site:springfield.il.us`,
		},
		{
			name:     "generic without domain",
			loc:      &entity.Location{ID: "1", Name: "Springfield", State: "IL"},
			platform: entity.PlatformGeneric,
			want:     `"Springfield" IL ("sales tax" OR "local sales tax" OR "sales and use tax")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildQueryText(tt.loc, dp, tt.platform)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildQueryText_SanitizesAndDeduplicates(t *testing.T) {
	loc := &entity.Location{ID: "1", Name: "Austin", State: "TX"}
	dp := &entity.Datapoint{ID: "str", Name: "Short-Term Rentals!", Synonyms: []string{"short term rentals", "  Vacation   Rentals ", "", "B&B"}}

	got, err := BuildQueryText(loc, dp, entity.PlatformMunicode)
	require.NoError(t, err)
	assert.Equal(t, `("short term rentals" OR "bb" OR "vacation rentals") site:library.municode.com/tx/austin`, got)

	single := &entity.Datapoint{ID: "zoning", Name: "Zoning"}
	got, err = BuildQueryText(loc, single, entity.PlatformMunicode)
	require.NoError(t, err)
	assert.Equal(t, `"zoning" site:library.municode.com/tx/austin`, got)
}

func TestBuildQueryText_SynonymOrderDoesNotMatter(t *testing.T) {
	loc := springfield()
	a := &entity.Datapoint{ID: "sales-tax", Name: "Sales Tax", Synonyms: []string{"use tax", "retail tax", "excise"}}
	b := &entity.Datapoint{ID: "sales-tax", Name: "Sales Tax", Synonyms: []string{"excise", "Use Tax", "retail tax", "use tax"}}

	qa, err := BuildQueryText(loc, a, entity.PlatformMunicode)
	require.NoError(t, err)
	qb, err := BuildQueryText(loc, b, entity.PlatformMunicode)
	require.NoError(t, err)
	assert.Equal(t, qa, qb)
}

func TestBuildQueryText_Invalid(t *testing.T) {
	loc := springfield()

	_, err := BuildQueryText(loc, &entity.Datapoint{ID: "x", Name: "?!"}, entity.PlatformMunicode)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = BuildQueryText(loc, salesTax(), entity.Platform("bing"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestQueryGenerator_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewQueryRepo()
	clk := clock.NewFake(epoch)
	gen := NewQueryGenerator(repo, clk, zap.NewNop())

	first, err := gen.Generate(ctx, springfield(), salesTax(), entity.PlatformMunicode)
	require.NoError(t, err)
	assert.Equal(t, entity.QueryPending, first.Status)
	assert.Len(t, first.Hash, 64)

	// A later call with different synonyms must not rewrite the stored query.
	clk.Advance(48 * time.Hour)
	changed := salesTax()
	changed.Synonyms = append(changed.Synonyms, "transaction privilege tax")
	second, err := gen.Generate(ctx, springfield(), changed, entity.PlatformMunicode)
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 1, repo.Len())

	other, err := gen.Generate(ctx, springfield(), salesTax(), entity.PlatformGeneric)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, other.Hash)
	assert.Equal(t, 2, repo.Len())
}
