package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedType means the bytes or the declared name do not match
	// any format this package can open.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrNoDestination is returned when a named or direct destination
	// cannot be resolved to a page.
	ErrNoDestination = errors.New("destination not found")
)

// Ref is a direct destination reference. Its concrete type is private to
// the Handle that produced it.
type Ref any

// Dest is the navigation target of an outline item. Exactly one of Name or
// Ref is set.
type Dest struct {
	Name string
	Ref  Ref
}

// OutlineItem is one node of a document's embedded outline tree.
type OutlineItem struct {
	Title    string
	Dest     Dest
	Children []OutlineItem
}

// TextItem is a run of text on a page with its rendered height.
type TextItem struct {
	Text   string
	Height float64
}

// Page is a loaded page. Release frees its resources and is safe to call
// more than once.
type Page interface {
	TextItems() ([]TextItem, error)
	Release()
}

// Handle is an open document.
type Handle interface {
	PageCount() int
	// Outline returns nil when the document carries no outline.
	Outline() ([]OutlineItem, error)
	ResolveNamedDest(name string) (Ref, error)
	// PageIndex returns the 0-based page a reference points to.
	PageIndex(ref Ref) (int, error)
	// Page loads page num, 1-based.
	Page(num int) (Page, error)
	Close() error
}

// Kind identifies a document format.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindEPUB     Kind = "epub"
	KindDOCX     Kind = "docx"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindText     Kind = "text"
	KindCSV      Kind = "csv"
)

// Format describes a supported document format.
type Format struct {
	Kind       Kind     `json:"kind"`
	Extensions []string `json:"extensions"`
	Paginated  bool     `json:"paginated"` // false when pages are synthesized from blocks
}

// Formats lists every format Open understands.
var Formats = []Format{
	{Kind: KindPDF, Extensions: []string{".pdf"}, Paginated: true},
	{Kind: KindEPUB, Extensions: []string{".epub"}, Paginated: true},
	{Kind: KindDOCX, Extensions: []string{".docx"}},
	{Kind: KindMarkdown, Extensions: []string{".md", ".markdown"}},
	{Kind: KindHTML, Extensions: []string{".html", ".htm", ".xhtml"}},
	{Kind: KindText, Extensions: []string{".txt"}},
	{Kind: KindCSV, Extensions: []string{".csv"}},
}

// Options tunes how documents are opened.
type Options struct {
	// BlocksPerPage is the number of blocks (paragraphs, headings, rows)
	// per synthesized page for formats without real pages.
	BlocksPerPage int
}

const DefaultBlocksPerPage = 40

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// Detect checks the declared name against the content and returns the
// document kind.
func Detect(name string, data []byte) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(name))
	isPDF := bytes.HasPrefix(data, pdfMagic)
	isZip := bytes.HasPrefix(data, zipMagic)

	switch ext {
	case ".pdf":
		if isPDF {
			return KindPDF, nil
		}
	case ".epub":
		if isZip {
			return KindEPUB, nil
		}
	case ".docx":
		if isZip {
			return KindDOCX, nil
		}
	case ".md", ".markdown":
		if isTextual(data) {
			return KindMarkdown, nil
		}
	case ".html", ".htm", ".xhtml":
		if isTextual(data) {
			return KindHTML, nil
		}
	case ".txt":
		if isTextual(data) {
			return KindText, nil
		}
	case ".csv":
		if isTextual(data) {
			return KindCSV, nil
		}
	case "":
		switch {
		case isPDF:
			return KindPDF, nil
		case isZip:
			if k, ok := sniffZip(data); ok {
				return k, nil
			}
		}
	}
	if ext == "" {
		return "", fmt.Errorf("%w: unrecognized content", ErrUnsupportedType)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range Formats {
		for _, e := range f.Extensions {
			if e == ext {
				return true
			}
		}
	}
	return false
}

// Open parses data as a document of the given kind. The Handle keeps a
// reference to data; callers must not modify it afterwards.
func Open(kind Kind, data []byte, opts Options) (Handle, error) {
	if opts.BlocksPerPage <= 0 {
		opts.BlocksPerPage = DefaultBlocksPerPage
	}
	switch kind {
	case KindPDF:
		return openPDF(data)
	case KindEPUB:
		return openEPUB(data)
	case KindDOCX:
		return openDOCX(data, opts)
	case KindMarkdown:
		return openMarkdown(data, opts)
	case KindHTML:
		return openHTML(data, opts)
	case KindText:
		return openText(data, opts)
	case KindCSV:
		return openCSV(data, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
}

func isTextual(data []byte) bool {
	if bytes.HasPrefix(data, pdfMagic) || bytes.HasPrefix(data, zipMagic) {
		return false
	}
	ct := http.DetectContentType(data)
	return strings.HasPrefix(ct, "text/")
}

// catch converts a panic from a third-party parser into an error.
func catch(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: malformed document: %v", op, r)
	}
}
