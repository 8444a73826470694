package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

// NCX structures for toc.ncx.
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	Label    navLabel   `xml:"navLabel"`
	Content  navContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// epubRef points at a spine document by href.
type epubRef string

// epubDoc exposes one page per spine item. Chapters are read and parsed
// only when their page is loaded.
type epubDoc struct {
	items  []*epub.Item
	hrefs  map[string]int // href and base name -> spine position
	zr     *zip.Reader
	book   *epub.Rootfile
	closed bool
}

func openEPUB(data []byte) (h Handle, err error) {
	defer catch(&err, "open epub")

	rd, err := epub.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	if len(rd.Rootfiles) == 0 {
		return nil, fmt.Errorf("open epub: no rootfiles found")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}

	d := &epubDoc{
		hrefs: make(map[string]int),
		zr:    zr,
		book:  rd.Rootfiles[0],
	}
	for _, ref := range d.book.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		i := len(d.items)
		d.items = append(d.items, ref.Item)
		if ref.Item.HREF == "" {
			continue
		}
		if _, ok := d.hrefs[ref.Item.HREF]; !ok {
			d.hrefs[ref.Item.HREF] = i
		}
		if _, ok := d.hrefs[path.Base(ref.Item.HREF)]; !ok {
			d.hrefs[path.Base(ref.Item.HREF)] = i
		}
	}
	return d, nil
}

func (d *epubDoc) PageCount() int { return len(d.items) }

func (d *epubDoc) Close() error {
	d.items = nil
	d.hrefs = nil
	d.zr = nil
	d.book = nil
	d.closed = true
	return nil
}

func (d *epubDoc) Page(num int) (p Page, err error) {
	defer catch(&err, "load chapter")
	if d.closed {
		return nil, fmt.Errorf("load chapter %d: document closed", num)
	}
	if num < 1 || num > len(d.items) {
		return nil, fmt.Errorf("load chapter %d: out of range 1..%d", num, len(d.items))
	}
	rc, err := d.items[num-1].Open()
	if err != nil {
		return nil, fmt.Errorf("load chapter %d: %w", num, err)
	}
	defer rc.Close()

	blocks, _, err := htmlBlocks(rc)
	if err != nil {
		return nil, fmt.Errorf("load chapter %d: %w", num, err)
	}
	return &blockPage{blocks: blocks}, nil
}

// Outline reads the NCX navigation map. A src with a fragment is treated
// as a named destination, a bare src as a direct reference.
func (d *epubDoc) Outline() ([]OutlineItem, error) {
	if d.closed {
		return nil, fmt.Errorf("read outline: document closed")
	}
	data, err := d.readNCX()
	if err != nil {
		return nil, nil
	}
	var toc ncx
	if err := xml.Unmarshal(data, &toc); err != nil {
		return nil, fmt.Errorf("parse ncx: %w", err)
	}
	return navOutline(toc.NavMap.NavPoints, 0), nil
}

func navOutline(points []navPoint, depth int) []OutlineItem {
	if depth >= maxOutlineDepth {
		return nil
	}
	items := make([]OutlineItem, 0, len(points))
	for _, np := range points {
		src := strings.TrimSpace(np.Content.Src)
		item := OutlineItem{
			Title:    strings.Join(strings.Fields(np.Label.Text), " "),
			Children: navOutline(np.Children, depth+1),
		}
		if strings.Contains(src, "#") {
			item.Dest = Dest{Name: src}
		} else {
			item.Dest = Dest{Ref: epubRef(src)}
		}
		items = append(items, item)
	}
	return items
}

// ResolveNamedDest maps "chapter.xhtml#anchor" to its chapter. A chapter is
// a single page, so the fragment only has to belong to a known document.
func (d *epubDoc) ResolveNamedDest(name string) (Ref, error) {
	href, _, _ := strings.Cut(name, "#")
	if _, ok := d.lookupHref(href); !ok {
		return nil, fmt.Errorf("resolve %q: %w", name, ErrNoDestination)
	}
	return epubRef(href), nil
}

func (d *epubDoc) PageIndex(ref Ref) (int, error) {
	r, ok := ref.(epubRef)
	if !ok {
		return 0, fmt.Errorf("reference %T: %w", ref, ErrNoDestination)
	}
	if i, ok := d.lookupHref(string(r)); ok {
		return i, nil
	}
	return 0, fmt.Errorf("chapter %q: %w", string(r), ErrNoDestination)
}

func (d *epubDoc) lookupHref(href string) (int, bool) {
	if href == "" {
		return 0, false
	}
	if i, ok := d.hrefs[href]; ok {
		return i, true
	}
	i, ok := d.hrefs[path.Base(href)]
	return i, ok
}

// readNCX locates the NCX through the manifest, then by file extension.
func (d *epubDoc) readNCX() ([]byte, error) {
	var ncxPath string
	for _, item := range d.book.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range d.zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, fmt.Errorf("no NCX file found in EPUB")
	}

	for _, f := range d.zr.File {
		if f.Name == ncxPath || strings.HasSuffix(f.Name, "/"+ncxPath) || path.Base(f.Name) == path.Base(ncxPath) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("NCX file %s not found in archive", ncxPath)
}

// sniffZip tells EPUB and DOCX containers apart.
func sniffZip(data []byte) (Kind, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false
	}
	for _, f := range zr.File {
		switch f.Name {
		case "mimetype":
			rc, err := f.Open()
			if err != nil {
				continue
			}
			head, _ := io.ReadAll(io.LimitReader(rc, 64))
			rc.Close()
			if strings.TrimSpace(string(head)) == "application/epub+zip" {
				return KindEPUB, true
			}
		case "word/document.xml":
			return KindDOCX, true
		}
	}
	return "", false
}
