package extraction

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/user/legalcode-service/internal/entity"
)

// boilerplate is removed before text is collected.
const boilerplate = "script, style, noscript, template, svg, nav, header, footer, aside, form, iframe, button"

var (
	_ Extractor = (*HTMLExtractor)(nil)

	wsRun = regexp.MustCompile(`\s+`)
)

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"li": true, "ul": true, "ol": true, "dl": true, "dt": true, "dd": true,
	"table": true, "tr": true, "blockquote": true, "pre": true, "address": true,
	"figure": true, "figcaption": true, "caption": true, "hr": true,
}

var headingTags = map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true}

// HTMLExtractor extracts code text from HTML pages. Headings open sections.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (e *HTMLExtractor) Formats() []entity.Format { return []entity.Format{entity.FormatHTML} }

func (e *HTMLExtractor) Extract(_ context.Context, in Input) (*Result, error) {
	raw, err := ToUTF8(in.Raw, in.ContentType)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	res := &Result{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			name, _ = s.Attr("property")
		}
		content, _ := s.Attr("content")
		switch strings.ToLower(name) {
		case "author", "dc.creator":
			res.Author = strings.TrimSpace(content)
		case "citation_title", "dc.identifier", "citation":
			res.Citation = strings.TrimSpace(content)
		}
	})

	doc.Find(boilerplate).Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	if h1 := strings.TrimSpace(body.Find("h1").First().Text()); res.Title == "" && h1 != "" {
		res.Title = wsRun.ReplaceAllString(h1, " ")
	}

	w := &htmlWalker{ids: sectionIDs{}}
	for _, n := range body.Nodes {
		w.walk(n)
	}
	w.flush()

	res.Sections = w.sections
	parts := make([]string, 0, len(w.sections))
	for _, s := range w.sections {
		if s.Heading != "" {
			parts = append(parts, s.Heading)
		}
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	res.Text = strings.Join(parts, "\n\n")
	return res, nil
}

type htmlWalker struct {
	ids      sectionIDs
	sections []entity.Section
	cur      *entity.Section
	buf      strings.Builder
	pre      int
}

func (w *htmlWalker) newline() {
	if w.buf.Len() > 0 && !strings.HasSuffix(w.buf.String(), "\n") {
		w.buf.WriteByte('\n')
	}
}

func (w *htmlWalker) flush() {
	text := strings.TrimSpace(w.buf.String())
	w.buf.Reset()
	if w.cur == nil {
		if text != "" {
			w.sections = append(w.sections, entity.Section{ID: w.ids.unique(preambleID), Text: text})
		}
		return
	}
	w.cur.Text = text
	w.sections = append(w.sections, *w.cur)
	w.cur = nil
}

func (w *htmlWalker) startSection(heading string) {
	w.flush()
	id, ok := headingID(heading)
	if !ok {
		id = slug(heading)
	}
	w.cur = &entity.Section{ID: w.ids.unique(id), Heading: heading}
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if w.pre > 0 {
			w.buf.WriteString(n.Data)
			return
		}
		text := wsRun.ReplaceAllString(n.Data, " ")
		if text == " " && (w.buf.Len() == 0 || strings.HasSuffix(w.buf.String(), "\n")) {
			return
		}
		w.buf.WriteString(text)
		return
	case html.ElementNode:
		tag := n.Data
		if headingTags[tag] {
			heading := strings.TrimSpace(wsRun.ReplaceAllString(goquery.NewDocumentFromNode(n).Text(), " "))
			if heading != "" {
				w.startSection(heading)
			}
			return
		}
		switch tag {
		case "br":
			w.buf.WriteByte('\n')
			return
		case "pre":
			w.pre++
			defer func() { w.pre-- }()
		}
		if blockTags[tag] {
			w.newline()
			defer w.newline()
		}
		if tag == "td" || tag == "th" {
			defer w.buf.WriteByte('\t')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}
