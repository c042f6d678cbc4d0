package extraction

import (
	"archive/zip"
	"bytes"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/legalcode-service/internal/entity"
)

var (
	magicPDF  = []byte("%PDF-")
	magicOLE  = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
	magicZIP  = []byte("PK\x03\x04")
	magicPNG  = []byte("\x89PNG\r\n\x1a\n")
	magicJPEG = []byte{0xff, 0xd8, 0xff}
	magicGIF  = []byte("GIF8")
	magicTIFF = [][]byte{[]byte("II*\x00"), []byte("MM\x00*")}
)

var contentTypes = map[string]entity.Format{
	"text/html":             entity.FormatHTML,
	"application/xhtml+xml": entity.FormatHTML,
	"application/pdf":       entity.FormatPDF,
	"application/x-pdf":     entity.FormatPDF,
	"application/msword":    entity.FormatDOC,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": entity.FormatDOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       entity.FormatXLSX,
}

var extensions = map[string]entity.Format{
	".html": entity.FormatHTML,
	".htm":  entity.FormatHTML,
	".pdf":  entity.FormatPDF,
	".doc":  entity.FormatDOC,
	".docx": entity.FormatDOCX,
	".xlsx": entity.FormatXLSX,
}

// Extractable reports whether f has a text extractor. Legacy OLE DOC is
// recognised but has none.
func Extractable(f entity.Format) bool {
	switch f {
	case entity.FormatHTML, entity.FormatPDF, entity.FormatDOCX, entity.FormatXLSX:
		return true
	}
	return false
}

// DetectFormat classifies a payload from its leading bytes, its Content-Type
// header and its URL, in that order of trust. complete reports whether head
// holds the whole payload, which is needed to look inside ZIP containers.
func DetectFormat(head []byte, complete bool, contentType, rawURL string) entity.Format {
	ct := mediaType(contentType)

	switch {
	case bytes.HasPrefix(bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n"), magicPDF):
		return entity.FormatPDF
	case bytes.HasPrefix(head, magicOLE):
		return entity.FormatDOC
	case bytes.HasPrefix(head, magicZIP):
		if complete {
			if f, ok := zipFormat(head); ok {
				return f
			}
			return entity.FormatUnsupported
		}
		if f, ok := contentTypes[ct]; ok && (f == entity.FormatDOCX || f == entity.FormatXLSX) {
			return f
		}
		if f, ok := extensionFormat(rawURL); ok && (f == entity.FormatDOCX || f == entity.FormatXLSX) {
			return f
		}
		return entity.FormatUnsupported
	case isImage(head):
		return entity.FormatUnsupported
	}

	if f, ok := contentTypes[ct]; ok {
		if f == entity.FormatPDF || !looksBinary(head) {
			return f
		}
	}
	if looksHTML(head) {
		return entity.FormatHTML
	}
	if f, ok := extensionFormat(rawURL); ok && f == entity.FormatHTML && !looksBinary(head) {
		return f
	}
	return entity.FormatUnsupported
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}

func extensionFormat(rawURL string) (entity.Format, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	f, ok := extensions[strings.ToLower(path.Ext(u.Path))]
	return f, ok
}

func zipFormat(raw []byte) (entity.Format, bool) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", false
	}
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			return entity.FormatDOCX, true
		case strings.HasPrefix(f.Name, "xl/"):
			return entity.FormatXLSX, true
		}
	}
	return "", false
}

func isImage(head []byte) bool {
	if bytes.HasPrefix(head, magicPNG) || bytes.HasPrefix(head, magicJPEG) || bytes.HasPrefix(head, magicGIF) {
		return true
	}
	for _, m := range magicTIFF {
		if bytes.HasPrefix(head, m) {
			return true
		}
	}
	return false
}

func looksHTML(head []byte) bool {
	n := len(head)
	if n > 1024 {
		n = 1024
	}
	lead := bytes.ToLower(bytes.TrimLeft(head[:n], "\xef\xbb\xbf \t\r\n"))
	for _, tag := range []string{"<!doctype html", "<html", "<head", "<body", "<title"} {
		if bytes.Contains(lead, []byte(tag)) {
			return true
		}
	}
	return false
}

func looksBinary(head []byte) bool {
	n := len(head)
	if n > 512 {
		n = 512
	}
	return bytes.IndexByte(head[:n], 0) >= 0
}

// minRenderedChars is the visible text below which a page that loads scripts
// is assumed to be a client-rendered shell.
const minRenderedChars = 200

// NeedsRender reports whether an HTML payload looks like a script-rendered
// shell whose content only appears after JavaScript runs.
func NeedsRender(raw []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return false
	}
	if doc.Find("script").Length() == 0 {
		return false
	}
	doc.Find(boilerplate).Remove()
	return visibleChars(doc.Find("body").Text()) < minRenderedChars
}
