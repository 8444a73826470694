package parser

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Outline trees deeper or wider than this are treated as malformed.
const (
	maxOutlineDepth = 64
	maxOutlineItems = 20000
)

// pdfPageRef points at a page object. The library hides object numbers,
// so a page is identified by the printed form of its dictionary.
type pdfPageRef struct {
	key string
}

// pdfPageNum is a 0-based page number used by some producers in place of
// a page object reference.
type pdfPageNum int

type pdfDoc struct {
	r      *pdflib.Reader
	npages int
	index  map[string]int // page fingerprint -> 0-based index, built on first use
}

func openPDF(data []byte) (h Handle, err error) {
	defer catch(&err, "open pdf")

	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n < 0 {
		return nil, fmt.Errorf("open pdf: invalid page count %d", n)
	}
	return &pdfDoc{r: r, npages: n}, nil
}

func (d *pdfDoc) PageCount() int { return d.npages }

func (d *pdfDoc) Close() error {
	d.r = nil
	d.index = nil
	return nil
}

func (d *pdfDoc) Page(num int) (p Page, err error) {
	defer catch(&err, "load page")
	if d.r == nil {
		return nil, fmt.Errorf("load page %d: document closed", num)
	}
	if num < 1 || num > d.npages {
		return nil, fmt.Errorf("load page %d: out of range 1..%d", num, d.npages)
	}
	pg := d.r.Page(num)
	if pg.V.IsNull() {
		return nil, fmt.Errorf("load page %d: not found in page tree", num)
	}
	return &pdfPage{page: pg}, nil
}

func (d *pdfDoc) Outline() (items []OutlineItem, err error) {
	defer catch(&err, "read outline")
	if d.r == nil {
		return nil, fmt.Errorf("read outline: document closed")
	}
	root := d.r.Trailer().Key("Root").Key("Outlines")
	if root.Kind() != pdflib.Dict {
		return nil, nil
	}
	count := 0
	return pdfOutlineChildren(root, 0, &count), nil
}

func pdfOutlineChildren(parent pdflib.Value, depth int, count *int) []OutlineItem {
	if depth >= maxOutlineDepth {
		return nil
	}
	var items []OutlineItem
	for child := parent.Key("First"); child.Kind() == pdflib.Dict; child = child.Key("Next") {
		*count++
		if *count > maxOutlineItems {
			break
		}
		items = append(items, OutlineItem{
			Title:    strings.TrimSpace(child.Key("Title").Text()),
			Dest:     pdfItemDest(child),
			Children: pdfOutlineChildren(child, depth+1, count),
		})
	}
	return items
}

// pdfItemDest reads /Dest, or the /D of a GoTo action.
func pdfItemDest(item pdflib.Value) Dest {
	dest := item.Key("Dest")
	if dest.IsNull() {
		if a := item.Key("A"); a.Key("S").Name() == "GoTo" {
			dest = a.Key("D")
		}
	}
	switch dest.Kind() {
	case pdflib.Name:
		return Dest{Name: dest.Name()}
	case pdflib.String:
		return Dest{Name: dest.RawString()}
	}
	return Dest{Ref: pdfDestRef(dest)}
}

// pdfDestRef extracts the page reference from an explicit destination
// array, or from a dictionary wrapping one under /D.
func pdfDestRef(dest pdflib.Value) Ref {
	if dest.Kind() == pdflib.Dict {
		dest = dest.Key("D")
	}
	if dest.Kind() != pdflib.Array || dest.Len() == 0 {
		return nil
	}
	target := dest.Index(0)
	switch target.Kind() {
	case pdflib.Dict:
		return pdfPageRef{key: target.String()}
	case pdflib.Integer:
		return pdfPageNum(target.Int64())
	}
	return nil
}

func (d *pdfDoc) ResolveNamedDest(name string) (ref Ref, err error) {
	defer catch(&err, "resolve named destination")
	if d.r == nil {
		return nil, fmt.Errorf("resolve %q: document closed", name)
	}
	catalog := d.r.Trailer().Key("Root")

	// PDF 1.1 style: a dictionary keyed by name.
	if dests := catalog.Key("Dests"); dests.Kind() == pdflib.Dict {
		if v := dests.Key(name); !v.IsNull() {
			if ref := pdfDestRef(v); ref != nil {
				return ref, nil
			}
		}
	}

	// PDF 1.2+: a name tree under /Names /Dests.
	if tree := catalog.Key("Names").Key("Dests"); tree.Kind() == pdflib.Dict {
		if v, ok := lookupNameTree(tree, name); ok {
			if ref := pdfDestRef(v); ref != nil {
				return ref, nil
			}
		}
	}
	return nil, fmt.Errorf("resolve %q: %w", name, ErrNoDestination)
}

// lookupNameTree searches a name tree iteratively. Limits are not trusted,
// every leaf is scanned.
func lookupNameTree(root pdflib.Value, name string) (pdflib.Value, bool) {
	stack := []pdflib.Value{root}
	visited := 0
	for len(stack) > 0 && visited < maxOutlineItems {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		names := node.Key("Names")
		for i := 0; i+1 < names.Len(); i += 2 {
			if names.Index(i).RawString() == name {
				return names.Index(i + 1), true
			}
		}
		kids := node.Key("Kids")
		for i := kids.Len() - 1; i >= 0; i-- {
			if kid := kids.Index(i); kid.Kind() == pdflib.Dict {
				stack = append(stack, kid)
			}
		}
	}
	return pdflib.Value{}, false
}

func (d *pdfDoc) PageIndex(ref Ref) (idx int, err error) {
	defer catch(&err, "resolve page index")
	switch r := ref.(type) {
	case pdfPageNum:
		if int(r) < 0 || int(r) >= d.npages {
			return 0, fmt.Errorf("page number %d: %w", r, ErrNoDestination)
		}
		return int(r), nil
	case pdfPageRef:
		if d.index == nil {
			if d.r == nil {
				return 0, fmt.Errorf("resolve page index: document closed")
			}
			d.index = d.buildPageIndex()
		}
		if i, ok := d.index[r.key]; ok {
			return i, nil
		}
		return 0, fmt.Errorf("page object: %w", ErrNoDestination)
	default:
		return 0, fmt.Errorf("reference %T: %w", ref, ErrNoDestination)
	}
}

// buildPageIndex walks the page tree in document order with an explicit
// stack. When two page dictionaries print identically the first wins.
func (d *pdfDoc) buildPageIndex() map[string]int {
	index := make(map[string]int, d.npages)
	stack := []pdflib.Value{d.r.Trailer().Key("Root").Key("Pages")}
	next := 0
	for len(stack) > 0 && next < d.npages {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.Key("Type").Name() {
		case "Pages":
			kids := node.Key("Kids")
			for i := kids.Len() - 1; i >= 0; i-- {
				stack = append(stack, kids.Index(i))
			}
		case "Page":
			key := node.String()
			if _, dup := index[key]; !dup {
				index[key] = next
			}
			next++
		}
	}
	return index
}

type pdfPage struct {
	page     pdflib.Page
	released bool
}

// TextItems merges the library's per-glyph output into runs that share a
// font, size and baseline. A TJ operator ends a run.
func (p *pdfPage) TextItems() (items []TextItem, err error) {
	defer catch(&err, "read page text")
	if p.released {
		return nil, fmt.Errorf("read page text: page released")
	}
	glyphs := p.page.Content().Text

	var run strings.Builder
	var last pdflib.Text
	flush := func() {
		if t := strings.TrimSpace(run.String()); t != "" {
			items = append(items, TextItem{Text: t, Height: last.FontSize})
		}
		run.Reset()
	}
	for _, g := range glyphs {
		if g.S == "\n" {
			flush()
			last = pdflib.Text{}
			continue
		}
		if run.Len() > 0 && !pdflib.IsSameSentence(last, g) {
			flush()
		}
		run.WriteString(g.S)
		last = g
	}
	flush()
	return items, nil
}

func (p *pdfPage) Release() {
	p.page = pdflib.Page{}
	p.released = true
}
