// Package sectiondiff compares two section lists by section identifier.
package sectiondiff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/user/legalcode-service/internal/entity"
)

// Result lists section identifiers by change type, plus a unified diff of the
// modified sections.
type Result struct {
	Added    []string
	Removed  []string
	Modified []string
	Patch    string
}

// Empty reports whether nothing changed.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Labels name the two sides in the patch header, e.g. "v3" and "v4".
type Labels struct {
	From string
	To   string
}

// Compare diffs old against next. Added and Modified follow the order of next,
// Removed follows the order of old.
func Compare(old, next []entity.Section, labels Labels) (Result, error) {
	before := make(map[string]entity.Section, len(old))
	for _, s := range old {
		before[s.ID] = s
	}
	after := make(map[string]bool, len(next))

	var res Result
	var patch strings.Builder
	for _, s := range next {
		after[s.ID] = true
		prev, ok := before[s.ID]
		if !ok {
			res.Added = append(res.Added, s.ID)
			continue
		}
		if prev.Heading == s.Heading && prev.Text == s.Text {
			continue
		}
		res.Modified = append(res.Modified, s.ID)
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(render(prev)),
			B:        difflib.SplitLines(render(s)),
			FromFile: labels.From + "/" + s.ID,
			ToFile:   labels.To + "/" + s.ID,
			Context:  2,
		})
		if err != nil {
			return Result{}, fmt.Errorf("diff section %s: %w", s.ID, err)
		}
		patch.WriteString(text)
	}
	for _, s := range old {
		if !after[s.ID] {
			res.Removed = append(res.Removed, s.ID)
		}
	}
	res.Patch = patch.String()
	return res, nil
}

func render(s entity.Section) string {
	if s.Heading == "" {
		return s.Text + "\n"
	}
	return s.Heading + "\n" + s.Text + "\n"
}
