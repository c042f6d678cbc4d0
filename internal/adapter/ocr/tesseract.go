// Package ocr recognizes scanned PDFs by rasterizing pages with pdftoppm and
// reading them with tesseract.
package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/extraction"
)

const (
	defaultLanguage = "eng"
	defaultDPI      = 300
)

var _ extraction.OCR = (*Tesseract)(nil)

// Tesseract implements extraction.OCR over the command line tools.
type Tesseract struct {
	runner   extraction.CommandRunner
	language string
	dpi      int
	tmpDir   string
	logger   *zap.Logger
}

// New builds a Tesseract. A nil runner executes the real binaries.
func New(runner extraction.CommandRunner, language, tmpDir string, logger *zap.Logger) *Tesseract {
	if runner == nil {
		runner = extraction.ExecRunner{}
	}
	if language == "" {
		language = defaultLanguage
	}
	return &Tesseract{runner: runner, language: language, dpi: defaultDPI, tmpDir: tmpDir, logger: logger}
}

// Recognize returns the recognized text, one line per OCR line and a blank
// line between pages, with the mean word confidence scaled to [0, 1].
func (t *Tesseract) Recognize(ctx context.Context, pdf []byte) (string, float64, error) {
	dir, err := os.MkdirTemp(t.tmpDir, "ocr-*")
	if err != nil {
		return "", 0, fmt.Errorf("create ocr dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(src, pdf, 0o600); err != nil {
		return "", 0, fmt.Errorf("write scan: %w", err)
	}
	if _, err := t.runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(t.dpi), "-png", src, filepath.Join(dir, "page")); err != nil {
		return "", 0, err
	}

	pages, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return "", 0, err
	}
	if len(pages) == 0 {
		return "", 0, fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Strings(pages)

	var (
		texts []string
		sum   float64
		words int
	)
	for _, page := range pages {
		out, err := t.runner.Run(ctx, "tesseract", page, "-", "-l", t.language, "tsv")
		if err != nil {
			return "", 0, err
		}
		p := parseTSV(string(out))
		texts = append(texts, p.text)
		sum += p.confSum
		words += p.words
	}

	conf := 0.0
	if words > 0 {
		conf = sum / float64(words) / 100
	}
	t.logger.Debug("OCR finished", zap.Int("pages", len(pages)), zap.Int("words", words), zap.Float64("confidence", conf))
	return strings.Join(texts, "\n\n"), conf, nil
}

type tsvPage struct {
	text    string
	confSum float64
	words   int
}

// parseTSV reads tesseract's TSV output:
// level page_num block_num par_num line_num word_num left top width height conf text
func parseTSV(out string) tsvPage {
	var (
		p       tsvPage
		lines   []string
		current []string
		lineKey string
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}
	for i, row := range strings.Split(out, "\n") {
		if i == 0 || row == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		word := strings.TrimSpace(cols[11])
		if err != nil || conf < 0 || word == "" {
			continue
		}
		key := cols[2] + "." + cols[3] + "." + cols[4]
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, word)
		p.confSum += conf
		p.words++
	}
	flush()
	p.text = strings.Join(lines, "\n")
	return p
}
