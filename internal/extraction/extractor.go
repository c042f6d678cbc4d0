// Package extraction turns raw legal-code payloads into normalized text split
// into sections. Each supported format has its own Extractor; a Registry picks
// one by detected format and treats anything else as unsupported.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/pkg/apperr"
)

var (
	// ErrEmptyText is returned when a payload parses but yields no text.
	ErrEmptyText = errors.New("no extractable text")
	// ErrNoOCR is returned for scanned PDFs when no OCR collaborator is configured.
	ErrNoOCR = errors.New("scanned document requires OCR")
)

// Input is the raw payload handed to an extractor.
type Input struct {
	Raw         []byte
	ContentType string
	URL         string
}

// Result is cleaned text plus whatever metadata the format exposes.
type Result struct {
	Text       string
	Sections   []entity.Section
	Title      string
	Author     string
	Citation   string
	Confidence *float64
	// Scanned is set when the text came from OCR.
	Scanned bool
}

// Extractor handles one or more formats.
type Extractor interface {
	Formats() []entity.Format
	Extract(ctx context.Context, in Input) (*Result, error)
}

// Registry routes payloads to the extractor registered for their format.
type Registry struct {
	byFormat map[entity.Format]Extractor
}

// NewRegistry registers extractors; later extractors win on overlapping formats.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byFormat: make(map[entity.Format]Extractor)}
	for _, e := range extractors {
		for _, f := range e.Formats() {
			r.byFormat[f] = e
		}
	}
	return r
}

// Supports reports whether an extractor is registered for f.
func (r *Registry) Supports(f entity.Format) bool {
	_, ok := r.byFormat[f]
	return ok
}

// Extract runs the extractor for f and normalizes its output. Unknown formats
// fail with an unsupported error; parse failures and empty output fail with an
// extraction error.
func (r *Registry) Extract(ctx context.Context, f entity.Format, in Input) (*Result, error) {
	e, ok := r.byFormat[f]
	if !ok {
		return nil, apperr.Unsupported("extraction.extract", fmt.Errorf("format %s", f))
	}
	res, err := e.Extract(ctx, in)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Extraction("extraction."+string(f), err)
	}
	finish(res)
	if res.Text == "" {
		return nil, apperr.Extraction("extraction."+string(f), ErrEmptyText)
	}
	return res, nil
}

// finish normalizes text and sections in place and derives sections from the
// text when the extractor produced none.
func finish(res *Result) {
	res.Text = NormalizeText(res.Text)
	res.Title = NormalizeText(res.Title)
	if len(res.Sections) == 0 {
		res.Sections = SplitSections(res.Text)
		return
	}
	out := res.Sections[:0]
	for _, s := range res.Sections {
		s.Text = NormalizeText(s.Text)
		s.Heading = NormalizeText(s.Heading)
		if s.Text == "" && s.Heading == "" {
			continue
		}
		out = append(out, s)
	}
	res.Sections = out
}
