package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/pkg/apperr"
)

// mockRunner answers by command name.
type mockRunner struct {
	outputs map[string][]byte
	errs    map[string]error
	calls   []string
}

func (m *mockRunner) Run(_ context.Context, name string, _ ...string) ([]byte, error) {
	m.calls = append(m.calls, name)
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	return m.outputs[name], nil
}

type stubOCR struct {
	text string
	conf float64
	err  error
}

func (s *stubOCR) Recognize(context.Context, []byte) (string, float64, error) {
	return s.text, s.conf, s.err
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNormalizeText(t *testing.T) {
	in := "  Sec.  3-12.\tSales  tax \r\n\r\n\r\n\r\nCafé rates\u200b apply  "
	got := NormalizeText(in)
	assert.Equal(t, "Sec. 3-12.\tSales tax\n\nCafé rates apply", got)
}

func TestToUTF8DecodesDeclaredCharset(t *testing.T) {
	latin1 := []byte{'C', 'a', 'f', 0xe9}
	got, err := ToUTF8(latin1, "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "Café", string(got))
}

func TestSplitSections(t *testing.T) {
	text := strings.Join([]string{
		"CITY OF SPRINGFIELD",
		"Code of Ordinances",
		"Sec. 3-12. Sales tax imposed.",
		"There is imposed a tax of one percent.",
		"§ 3-13 Exemptions",
		"Food for home consumption is exempt.",
		"3.14.010 Definitions",
		"Retailer means any person.",
		"Sec. 3-12. Sales tax imposed.",
		"Duplicate numbering appears in some codes.",
	}, "\n")

	sections := SplitSections(text)
	require.Len(t, sections, 5)
	assert.Equal(t, "city-of-springfield", sections[0].ID)
	assert.Equal(t, "Code of Ordinances", sections[0].Text)
	assert.Equal(t, "sec-3-12", sections[1].ID)
	assert.Equal(t, "There is imposed a tax of one percent.", sections[1].Text)
	assert.Equal(t, "sec-3-13", sections[2].ID)
	assert.Equal(t, "sec-3-14-010", sections[3].ID)
	assert.Equal(t, "sec-3-12-2", sections[4].ID)
}

func TestSplitSectionsWithoutHeadings(t *testing.T) {
	sections := SplitSections("plain paragraph one\nplain paragraph two")
	require.Len(t, sections, 1)
	assert.Equal(t, "body", sections[0].ID)
}

func TestSplitSectionsIgnoresNumbersInProse(t *testing.T) {
	sections := SplitSections("Chapter 5 Taxation\n1.5 million dollars were collected")
	require.Len(t, sections, 1)
	assert.Equal(t, "chapter-5", sections[0].ID)
}

func TestHTMLExtractor(t *testing.T) {
	page := `<html><head><title>Chapter 3 - TAXATION | Code of Ordinances</title>
<meta name="author" content="Municode"></head>
<body>
<nav>Home | Search | Login</nav>
<script>var x = 1;</script>
<p>Editor's note: current through Ord. 2024-12.</p>
<h2>Sec. 3-12. Sales tax imposed.</h2>
<p>There is imposed
   a tax of <b>one</b> percent.</p>
<table><tr><td>Rate</td><td>1%</td></tr></table>
<h2>Sec. 3-13. Exemptions.</h2>
<ul><li>Food</li><li>Medicine</li></ul>
<footer>Powered by Municode</footer>
</body></html>`

	reg := NewRegistry(NewHTMLExtractor())
	res, err := reg.Extract(context.Background(), entity.FormatHTML, Input{Raw: []byte(page), ContentType: "text/html"})
	require.NoError(t, err)

	assert.Equal(t, "Chapter 3 - TAXATION | Code of Ordinances", res.Title)
	assert.Equal(t, "Municode", res.Author)
	require.Len(t, res.Sections, 3)
	assert.Equal(t, "preamble", res.Sections[0].ID)
	assert.Equal(t, "sec-3-12", res.Sections[1].ID)
	assert.Equal(t, "There is imposed a tax of one percent.\nRate\t1%", res.Sections[1].Text)
	assert.Equal(t, "sec-3-13", res.Sections[2].ID)
	assert.Equal(t, "Food\nMedicine", res.Sections[2].Text)
	assert.NotContains(t, res.Text, "Login")
	assert.NotContains(t, res.Text, "var x")
	assert.NotContains(t, res.Text, "Powered by")
}

func TestHTMLExtractorEmptyShell(t *testing.T) {
	shell := `<html><body><app-root></app-root><script src="main.js"></script></body></html>`
	reg := NewRegistry(NewHTMLExtractor())

	_, err := reg.Extract(context.Background(), entity.FormatHTML, Input{Raw: []byte(shell)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestPDFExtractorTextLayer(t *testing.T) {
	body := "Sec. 3-12. Sales tax imposed.\n" + strings.Repeat("There is imposed a tax of one percent. ", 10)
	runner := &mockRunner{outputs: map[string][]byte{
		"pdftotext": []byte(body),
		"pdfinfo":   []byte("Title:          Springfield Code\nAuthor:         City Clerk\nPages:          12\n"),
	}}
	ocr := &stubOCR{text: "should not be used"}

	reg := NewRegistry(NewPDFExtractor(runner, WithOCR(ocr), WithTempDir(t.TempDir())))
	res, err := reg.Extract(context.Background(), entity.FormatPDF, Input{Raw: []byte("%PDF-1.7")})
	require.NoError(t, err)

	assert.Equal(t, "Springfield Code", res.Title)
	assert.Equal(t, "City Clerk", res.Author)
	assert.False(t, res.Scanned)
	assert.Nil(t, res.Confidence)
	require.Len(t, res.Sections, 1)
	assert.Equal(t, "sec-3-12", res.Sections[0].ID)
}

func TestPDFExtractorFallsBackToOCR(t *testing.T) {
	runner := &mockRunner{outputs: map[string][]byte{"pdftotext": []byte("\f\f  \n")}}
	ocr := &stubOCR{text: "SECTION 1. Short title.\nThis ordinance may be cited.", conf: 0.82}

	reg := NewRegistry(NewPDFExtractor(runner, WithOCR(ocr), WithTempDir(t.TempDir())))
	res, err := reg.Extract(context.Background(), entity.FormatPDF, Input{Raw: []byte("%PDF-1.4")})
	require.NoError(t, err)

	assert.True(t, res.Scanned)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.82, *res.Confidence, 1e-9)
	assert.Equal(t, "sec-1", res.Sections[0].ID)
}

func TestPDFExtractorScannedWithoutOCR(t *testing.T) {
	runner := &mockRunner{outputs: map[string][]byte{"pdftotext": nil}}
	reg := NewRegistry(NewPDFExtractor(runner, WithTempDir(t.TempDir())))

	_, err := reg.Extract(context.Background(), entity.FormatPDF, Input{Raw: []byte("%PDF-1.4")})
	assert.ErrorIs(t, err, ErrNoOCR)
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}

func TestPDFExtractorToolFailure(t *testing.T) {
	runner := &mockRunner{errs: map[string]error{"pdftotext": ErrToolNotFound}}
	reg := NewRegistry(NewPDFExtractor(runner, WithTempDir(t.TempDir())))

	_, err := reg.Extract(context.Background(), entity.FormatPDF, Input{Raw: []byte("%PDF-1.4")})
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}

const docxBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Ordinance No. 2024-7</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Section 1. Sales tax</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">The rate is </w:t></w:r><w:r><w:t>two percent.</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Class</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Rate</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Section 2. Effective date</w:t></w:r></w:p>
<w:p><w:r><w:t>Upon adoption.</w:t></w:r></w:p>
</w:body></w:document>`

const coreXML = `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>Sales Tax Ordinance</dc:title><dc:creator>City Attorney</dc:creator></cp:coreProperties>`

func TestDOCXExtractor(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"word/document.xml": docxBody,
		"docProps/core.xml": coreXML,
	})

	reg := NewRegistry(NewDOCXExtractor())
	res, err := reg.Extract(context.Background(), entity.FormatDOCX, Input{Raw: raw})
	require.NoError(t, err)

	assert.Equal(t, "Sales Tax Ordinance", res.Title)
	assert.Equal(t, "City Attorney", res.Author)
	require.Len(t, res.Sections, 3)
	assert.Equal(t, "preamble", res.Sections[0].ID)
	assert.Equal(t, "sec-1", res.Sections[1].ID)
	assert.Equal(t, "The rate is two percent.\nClass\tRate", res.Sections[1].Text)
	assert.Equal(t, "sec-2", res.Sections[2].ID)
}

func TestDOCXExtractorRejectsNonZip(t *testing.T) {
	reg := NewRegistry(NewDOCXExtractor())
	_, err := reg.Extract(context.Background(), entity.FormatDOCX, Input{Raw: []byte("not a zip")})
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}

func TestXLSXExtractor(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"xl/workbook.xml":      `<workbook><sheets><sheet name="Fee Schedule"/><sheet name="Notes"/></sheets></workbook>`,
		"xl/sharedStrings.xml": `<sst><si><t>Permit</t></si><si><t>Fee</t></si><si><r><t>Build</t></r><r><t>ing</t></r></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>
<row><c t="s"><v>0</v></c><c t="s"><v>1</v></c></row>
<row><c t="s"><v>2</v></c><c><v>150</v></c></row>
</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData><row><c t="inlineStr"><is><t>Adopted 2024</t></is></c></row></sheetData></worksheet>`,
	})

	reg := NewRegistry(NewXLSXExtractor())
	res, err := reg.Extract(context.Background(), entity.FormatXLSX, Input{Raw: raw})
	require.NoError(t, err)

	require.Len(t, res.Sections, 2)
	assert.Equal(t, "sheet-fee-schedule", res.Sections[0].ID)
	assert.Equal(t, "Permit\tFee\nBuilding\t150", res.Sections[0].Text)
	assert.Equal(t, "sheet-notes", res.Sections[1].ID)
	assert.Equal(t, "Adopted 2024", res.Sections[1].Text)
}

func TestRegistryUnsupported(t *testing.T) {
	reg := NewRegistry(NewHTMLExtractor())

	assert.False(t, reg.Supports(entity.FormatDOC))
	_, err := reg.Extract(context.Background(), entity.FormatDOC, Input{Raw: []byte{0xd0, 0xcf}})
	assert.Equal(t, apperr.KindUnsupported, apperr.KindOf(err))
}

func TestRegistryMarksPlainErrorsAsExtraction(t *testing.T) {
	runner := &mockRunner{errs: map[string]error{"pdftotext": errors.New("boom")}}
	reg := NewRegistry(NewPDFExtractor(runner, WithTempDir(t.TempDir())))

	_, err := reg.Extract(context.Background(), entity.FormatPDF, Input{Raw: []byte("%PDF")})
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}
