package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/user/legalcode-service/internal/entity"
)

var (
	_ Extractor = (*DOCXExtractor)(nil)
	_ Extractor = (*XLSXExtractor)(nil)

	errMissingPart = errors.New("missing package part")
)

func openZip(raw []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open zip container: %w", err)
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: %w", name, errMissingPart)
}

// coreProps is docProps/core.xml.
type coreProps struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
	Subject string `xml:"subject"`
}

func readCoreProps(zr *zip.Reader, res *Result) {
	b, err := readPart(zr, "docProps/core.xml")
	if err != nil {
		return
	}
	var core coreProps
	if xml.Unmarshal(b, &core) == nil {
		res.Title = strings.TrimSpace(core.Title)
		res.Author = strings.TrimSpace(core.Creator)
		res.Citation = strings.TrimSpace(core.Subject)
	}
}

// DOCXExtractor reads word/document.xml. Paragraphs styled as headings open
// sections; table rows become tab-delimited lines.
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

func (e *DOCXExtractor) Formats() []entity.Format { return []entity.Format{entity.FormatDOCX} }

func (e *DOCXExtractor) Extract(_ context.Context, in Input) (*Result, error) {
	zr, err := openZip(in.Raw)
	if err != nil {
		return nil, err
	}
	body, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	paras, err := parseWordParagraphs(body)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	readCoreProps(zr, res)

	lines := make([]string, 0, len(paras))
	hasStyledHeadings := false
	for _, p := range paras {
		lines = append(lines, p.text)
		if p.heading {
			hasStyledHeadings = true
		}
	}
	res.Text = strings.Join(lines, "\n")
	if hasStyledHeadings {
		res.Sections = wordSections(paras)
	}
	return res, nil
}

type wordParagraph struct {
	text    string
	heading bool
}

// parseWordParagraphs streams WordprocessingML tokens, keeping document order
// between paragraphs and tables.
func parseWordParagraphs(body []byte) ([]wordParagraph, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		paras   []wordParagraph
		cur     strings.Builder
		heading bool
		inText  bool
		cellDep int
		row     []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				cur.WriteByte('\n')
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" {
						v := strings.ToLower(a.Value)
						heading = strings.HasPrefix(v, "heading") || v == "title"
					}
				}
			case "tc":
				cellDep++
			case "tr":
				row = row[:0]
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cellDep > 0 {
					cur.WriteByte(' ')
					continue
				}
				paras = append(paras, wordParagraph{text: strings.TrimSpace(cur.String()), heading: heading})
				cur.Reset()
				heading = false
			case "tc":
				row = append(row, strings.TrimSpace(cur.String()))
				cur.Reset()
				cellDep--
			case "tr":
				paras = append(paras, wordParagraph{text: strings.Join(row, "\t")})
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return paras, nil
}

func wordSections(paras []wordParagraph) []entity.Section {
	ids := sectionIDs{}
	var out []entity.Section
	var cur *entity.Section
	var buf []string
	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if cur == nil {
			if body != "" {
				out = append(out, entity.Section{ID: ids.unique(preambleID), Text: body})
			}
			return
		}
		cur.Text = body
		out = append(out, *cur)
	}
	for _, p := range paras {
		if p.heading && p.text != "" {
			flush()
			id, ok := headingID(p.text)
			if !ok {
				id = slug(p.text)
			}
			cur = &entity.Section{ID: ids.unique(id), Heading: p.text}
			continue
		}
		buf = append(buf, p.text)
	}
	flush()
	return out
}

// XLSXExtractor renders each worksheet as one section of tab-delimited rows.
type XLSXExtractor struct{}

func NewXLSXExtractor() *XLSXExtractor { return &XLSXExtractor{} }

func (e *XLSXExtractor) Formats() []entity.Format { return []entity.Format{entity.FormatXLSX} }

type sharedStrings struct {
	Items []struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type workbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
	} `xml:"sheets>sheet"`
}

type worksheet struct {
	Rows []struct {
		Cells []struct {
			Ref    string `xml:"r,attr"`
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				T string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func (e *XLSXExtractor) Extract(_ context.Context, in Input) (*Result, error) {
	zr, err := openZip(in.Raw)
	if err != nil {
		return nil, err
	}

	var shared []string
	if b, err := readPart(zr, "xl/sharedStrings.xml"); err == nil {
		var ss sharedStrings
		if err := xml.Unmarshal(b, &ss); err != nil {
			return nil, fmt.Errorf("parse sharedStrings.xml: %w", err)
		}
		for _, it := range ss.Items {
			s := it.T
			for _, r := range it.Runs {
				s += r.T
			}
			shared = append(shared, s)
		}
	}

	var names []string
	if b, err := readPart(zr, "xl/workbook.xml"); err == nil {
		var wb workbook
		if xml.Unmarshal(b, &wb) == nil {
			for _, s := range wb.Sheets {
				names = append(names, s.Name)
			}
		}
	}

	sheets := worksheetParts(zr)
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xl/worksheets: %w", errMissingPart)
	}

	res := &Result{}
	readCoreProps(zr, res)
	ids := sectionIDs{}
	var all []string
	for i, part := range sheets {
		b, err := readPart(zr, part)
		if err != nil {
			return nil, err
		}
		var ws worksheet
		if err := xml.Unmarshal(b, &ws); err != nil {
			return nil, fmt.Errorf("parse %s: %w", part, err)
		}
		var rows []string
		for _, r := range ws.Rows {
			cells := make([]string, 0, len(r.Cells))
			for _, c := range r.Cells {
				cells = append(cells, cellText(c.Type, c.Value, c.Inline.T, shared))
			}
			if line := strings.TrimRight(strings.Join(cells, "\t"), "\t"); line != "" {
				rows = append(rows, line)
			}
		}
		name := fmt.Sprintf("Sheet%d", i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		text := strings.Join(rows, "\n")
		res.Sections = append(res.Sections, entity.Section{
			ID:      ids.unique("sheet-" + slug(name)),
			Heading: name,
			Text:    text,
		})
		all = append(all, name, text)
	}
	res.Text = strings.Join(all, "\n\n")
	return res, nil
}

func cellText(typ, value, inline string, shared []string) string {
	switch typ {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return inline
	case "b":
		if value == "1" {
			return "TRUE"
		}
		return "FALSE"
	}
	return value
}

// worksheetParts lists xl/worksheets/sheetN.xml in numeric order.
func worksheetParts(zr *zip.Reader) []string {
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "xl/worksheets/sheet") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(f.Name, "xl/worksheets/sheet"), ".xml")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		parts = append(parts, part{f.Name, n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.name
	}
	return out
}
