package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/user/legalcode-service/internal/entity"
)

const (
	preambleID   = "preamble"
	bodyID       = "body"
	maxHeadingLn = 120
)

type headingRule struct {
	re     *regexp.Regexp
	prefix string
}

var headingRules = []headingRule{
	{regexp.MustCompile(`^§+\s*([0-9][0-9A-Za-z.\-–]*)`), "sec"},
	{regexp.MustCompile(`^(?i:sec\.|sect\.|section)\s*([0-9][0-9A-Za-z.\-–]*)`), "sec"},
	{regexp.MustCompile(`^(?i:chapter)\s+([0-9][0-9A-Za-z.\-]*|[IVXLCDM]+\b)`), "chapter"},
	{regexp.MustCompile(`^(?i:article)\s+([0-9][0-9A-Za-z.\-]*|[IVXLCDM]+\b)`), "article"},
	{regexp.MustCompile(`^(?i:division)\s+([0-9][0-9A-Za-z.\-]*|[IVXLCDM]+\b)`), "division"},
	{regexp.MustCompile(`^(?i:part)\s+([0-9][0-9A-Za-z.\-]*|[IVXLCDM]+\b)`), "part"},
	{regexp.MustCompile(`^(?i:title)\s+([0-9][0-9A-Za-z.\-]*|[IVXLCDM]+\b)`), "title"},
	{regexp.MustCompile(`^(\d+(?:[.\-]\d+)+)\.?\s+[A-Z]`), "sec"},
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "–", "-")
	s = nonSlug.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	return s
}

// headingID returns the section identifier implied by a numbered heading line.
func headingID(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeadingLn {
		return "", false
	}
	for _, rule := range headingRules {
		m := rule.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num := strings.TrimRight(m[1], ".-–")
		if num == "" {
			continue
		}
		return rule.prefix + "-" + slug(num), true
	}
	return "", false
}

// isCapsHeading matches short, unindented, upper-case lines such as
// "GENERAL PROVISIONS".
func isCapsHeading(raw string) bool {
	if raw == "" || raw[0] == ' ' || raw[0] == '\t' {
		return false
	}
	line := strings.TrimSpace(raw)
	if len(line) < 4 || len(line) > 80 || strings.HasSuffix(line, ",") {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 3
}

// sectionIDs hands out unique identifiers, suffixing repeats with -2, -3, ...
type sectionIDs map[string]int

func (s sectionIDs) unique(id string) string {
	if id == "" {
		id = "section"
	}
	s[id]++
	if n := s[id]; n > 1 {
		return id + "-" + strconv.Itoa(n)
	}
	return id
}

// SplitSections derives sections from plain text using numbering patterns
// ("Sec. 3-12", "§ 4.01", "Chapter 5", "3.12.010 Definitions") and upper-case
// heading lines. Text before the first heading becomes a "preamble" section;
// text with no headings at all becomes a single "body" section.
func SplitSections(text string) []entity.Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ids := sectionIDs{}
	var sections []entity.Section
	var cur *entity.Section
	var buf strings.Builder

	flush := func() {
		if cur == nil {
			if body := strings.TrimSpace(buf.String()); body != "" {
				sections = append(sections, entity.Section{ID: ids.unique(preambleID), Text: body})
			}
		} else {
			cur.Text = strings.TrimSpace(buf.String())
			sections = append(sections, *cur)
		}
		buf.Reset()
	}

	headings := 0
	for _, raw := range strings.Split(text, "\n") {
		id, numbered := headingID(raw)
		if !numbered && isCapsHeading(raw) {
			id, numbered = slug(raw), true
		}
		if numbered {
			flush()
			headings++
			cur = &entity.Section{ID: ids.unique(id), Heading: strings.TrimSpace(raw)}
			continue
		}
		buf.WriteString(raw)
		buf.WriteByte('\n')
	}
	flush()

	if headings == 0 && len(sections) == 1 {
		sections[0].ID = bodyID
	}
	return sections
}
