package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/pkg/apperr"
)

// defaultMinTextChars is the text-layer size below which a PDF is treated as scanned.
const defaultMinTextChars = 200

var _ Extractor = (*PDFExtractor)(nil)

// OCR recognizes text in a scanned PDF and reports a confidence in [0, 1].
type OCR interface {
	Recognize(ctx context.Context, pdf []byte) (text string, confidence float64, err error)
}

// PDFExtractor reads the text layer with pdftotext and falls back to OCR when
// the layer is (nearly) empty.
type PDFExtractor struct {
	runner       CommandRunner
	ocr          OCR
	minTextChars int
	tmpDir       string
}

// PDFOption configures a PDFExtractor.
type PDFOption func(*PDFExtractor)

// WithOCR sets the collaborator used for scanned PDFs.
func WithOCR(o OCR) PDFOption { return func(e *PDFExtractor) { e.ocr = o } }

// WithMinTextChars sets the scanned-PDF threshold.
func WithMinTextChars(n int) PDFOption { return func(e *PDFExtractor) { e.minTextChars = n } }

// WithTempDir sets where payloads are written for the converters.
func WithTempDir(dir string) PDFOption { return func(e *PDFExtractor) { e.tmpDir = dir } }

func NewPDFExtractor(runner CommandRunner, opts ...PDFOption) *PDFExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	e := &PDFExtractor{runner: runner, minTextChars: defaultMinTextChars}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *PDFExtractor) Formats() []entity.Format { return []entity.Format{entity.FormatPDF} }

func (e *PDFExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	path, cleanup, err := writeTemp(e.tmpDir, "doc-*.pdf", in.Raw)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := e.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, apperr.Extraction("extraction.pdf", err)
	}

	res := &Result{Text: string(out)}
	e.readInfo(ctx, path, res)

	if visibleChars(res.Text) >= e.minTextChars {
		return res, nil
	}

	if e.ocr == nil {
		return nil, apperr.Extraction("extraction.pdf", ErrNoOCR)
	}
	text, conf, err := e.ocr.Recognize(ctx, in.Raw)
	if err != nil {
		return nil, apperr.Extraction("extraction.ocr", err)
	}
	res.Text = text
	res.Confidence = &conf
	res.Scanned = true
	return res, nil
}

// readInfo fills title and author from pdfinfo; failures are ignored.
func (e *PDFExtractor) readInfo(ctx context.Context, path string, res *Result) {
	out, err := e.runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "Title":
			res.Title = val
		case "Author":
			res.Author = val
		case "Subject":
			if res.Citation == "" {
				res.Citation = val
			}
		}
	}
}

func visibleChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) && unicode.IsPrint(r) {
			n++
		}
	}
	return n
}

func writeTemp(dir, pattern string, raw []byte) (string, func(), error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(raw); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return filepath.Clean(name), cleanup, nil
}
