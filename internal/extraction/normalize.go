package extraction

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

var spaceRun = regexp.MustCompile(`[ \f\v\x{00a0}\x{2000}-\x{200a}\x{202f}\x{3000}]+`)

// ToUTF8 decodes raw using the charset named in contentType, a BOM, or an
// HTML meta tag, falling back to UTF-8.
func ToUTF8(raw []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, fmt.Errorf("charset reader: %w", err)
	}
	return io.ReadAll(r)
}

// NormalizeText applies Unicode NFC, converts line endings to \n, collapses
// horizontal whitespace except tabs, trims each line and squeezes blank lines.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u200b", "")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = spaceRun.ReplaceAllString(line, " ")
		line = strings.Trim(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
