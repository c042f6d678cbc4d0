package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/fingerprint"
)

// QueryGenerator turns a (Location, Datapoint, Platform) triple into a stored search query.
type QueryGenerator interface {
	// Generate returns the query for the triple, creating it on first use.
	// A query that already exists is returned as stored and never rewritten.
	Generate(ctx context.Context, loc *entity.Location, dp *entity.Datapoint, platform entity.Platform) (*entity.Query, error)
}

type queryGenerator struct {
	queries repository.QueryRepository
	clock   clock.Clock
	logger  *zap.Logger
}

// NewQueryGenerator creates a new QueryGenerator.
func NewQueryGenerator(queries repository.QueryRepository, clk clock.Clock, logger *zap.Logger) QueryGenerator {
	return &queryGenerator{queries: queries, clock: clk, logger: logger}
}

func (g *queryGenerator) Generate(ctx context.Context, loc *entity.Location, dp *entity.Datapoint, platform entity.Platform) (*entity.Query, error) {
	hash := fingerprint.QueryHash(loc.ID, dp.ID, string(platform))

	existing, err := g.queries.FindByHash(ctx, hash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up query %s: %w", hash, err)
	}

	text, err := BuildQueryText(loc, dp, platform)
	if err != nil {
		return nil, err
	}

	q := &entity.Query{
		Hash:        hash,
		LocationID:  loc.ID,
		DatapointID: dp.ID,
		Platform:    platform,
		Text:        text,
		Status:      entity.QueryPending,
		CreatedAt:   g.clock.Now().UTC(),
	}
	created, err := g.queries.Create(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to create query %s: %w", hash, err)
	}
	if !created {
		// Another worker won the insert.
		return g.queries.FindByHash(ctx, hash)
	}

	g.logger.Debug("Generated search query",
		zap.String("query_hash", hash),
		zap.String("unit", entity.UnitKey{LocationID: loc.ID, DatapointID: dp.ID}.String()),
		zap.String("platform", string(platform)),
		zap.String("text", text))
	return q, nil
}

// BuildQueryText renders the search text for a triple. The result depends only
// on the inputs' content, so reordering synonyms never changes it.
func BuildQueryText(loc *entity.Location, dp *entity.Datapoint, platform entity.Platform) (string, error) {
	if !platform.Valid() {
		return "", apperr.Validation("query.build", fmt.Errorf("unknown platform %q", platform))
	}
	terms := queryTerms(dp)
	if len(terms) == 0 {
		return "", apperr.Validation("query.build", fmt.Errorf("datapoint %s has no searchable words", dp.ID))
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	group := quoted[0]
	if len(quoted) > 1 {
		group = "(" + strings.Join(quoted, " OR ") + ")"
	}

	var parts []string
	switch platform {
	case entity.PlatformMunicode:
		parts = append(parts, group, "site:library.municode.com/"+strings.ToLower(loc.State)+"/"+slug(loc.Name, "_"))
	case entity.PlatformAmericanLegal:
		parts = append(parts, group, "site:codelibrary.amlegal.com/codes/"+slug(loc.Name, ""))
	case entity.PlatformGeneralCode:
		parts = append(parts, jurisdiction(loc), group, "site:ecode360.com")
	case entity.PlatformGeneric:
		parts = append(parts, jurisdiction(loc), group)
		if len(loc.Domains) > 0 {
			parts = append(parts, "site:"+strings.ToLower(loc.Domains[0]))
		}
	}
	return strings.Join(parts, " "), nil
}

// queryTerms returns the sanitized datapoint name followed by its distinct
// sanitized synonyms in lexical order.
func queryTerms(dp *entity.Datapoint) []string {
	name := sanitizeTerm(dp.Name)
	if name == "" {
		return nil
	}
	seen := map[string]bool{name: true}
	var syns []string
	for _, s := range dp.Synonyms {
		s = sanitizeTerm(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		syns = append(syns, s)
	}
	sort.Strings(syns)
	return append([]string{name}, syns...)
}

// sanitizeTerm lowercases s, drops punctuation and symbols, and collapses whitespace.
func sanitizeTerm(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '/' || unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPunct(r), unicode.IsSymbol(r):
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func jurisdiction(loc *entity.Location) string {
	return `"` + strings.Join(strings.Fields(loc.Name), " ") + `" ` + strings.ToUpper(loc.State)
}

// slug joins the lowercase alphanumeric words of name with sep.
func slug(name, sep string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, sep)
}
