// Package parsertest provides an in-memory parser.Handle for tests.
package parsertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/docextract/internal/parser"
)

// Ref is a direct reference to a 0-based page index.
type Ref int

// PageSpec describes one fake page.
type PageSpec struct {
	Items []parser.TextItem
	// Err is returned from TextItems.
	Err error
	// Panic makes TextItems panic.
	Panic bool
	// LoadErr is returned from Doc.Page.
	LoadErr error
}

// Text builds a page of body-height items.
func Text(words ...string) PageSpec {
	items := make([]parser.TextItem, 0, len(words))
	for _, w := range words {
		items = append(items, parser.TextItem{Text: w, Height: 12})
	}
	return PageSpec{Items: items}
}

// Doc is a fake document. Its zero value is an empty document.
type Doc struct {
	Pages      []PageSpec
	Items      []parser.OutlineItem
	OutlineErr error
	Named      map[string]parser.Ref
	// PageDelay is slept before every page load.
	PageDelay time.Duration
	// Gate, when set, blocks page loads until it is closed.
	Gate chan struct{}

	mu      sync.Mutex
	loads   []int
	live    int
	maxLive int
	closes  int
}

var ErrNoSuchPage = errors.New("no such page")

func (d *Doc) PageCount() int { return len(d.Pages) }

func (d *Doc) Outline() ([]parser.OutlineItem, error) {
	if d.OutlineErr != nil {
		return nil, d.OutlineErr
	}
	return d.Items, nil
}

func (d *Doc) ResolveNamedDest(name string) (parser.Ref, error) {
	if ref, ok := d.Named[name]; ok {
		return ref, nil
	}
	return nil, fmt.Errorf("resolve %q: %w", name, parser.ErrNoDestination)
}

func (d *Doc) PageIndex(ref parser.Ref) (int, error) {
	r, ok := ref.(Ref)
	if !ok || int(r) < 0 || int(r) >= len(d.Pages) {
		return 0, fmt.Errorf("reference %v: %w", ref, parser.ErrNoDestination)
	}
	return int(r), nil
}

func (d *Doc) Page(num int) (parser.Page, error) {
	if d.Gate != nil {
		<-d.Gate
	}
	if d.PageDelay > 0 {
		time.Sleep(d.PageDelay)
	}
	if num < 1 || num > len(d.Pages) {
		return nil, fmt.Errorf("page %d: %w", num, ErrNoSuchPage)
	}
	ps := d.Pages[num-1]
	if ps.LoadErr != nil {
		return nil, ps.LoadErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads = append(d.loads, num)
	d.live++
	d.maxLive = max(d.maxLive, d.live)
	return &page{doc: d, PageSpec: ps}, nil
}

func (d *Doc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

// Loads returns the page numbers loaded so far, in order.
func (d *Doc) Loads() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.loads...)
}

// MaxLive is the highest number of pages held at once.
func (d *Doc) MaxLive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxLive
}

// Live is the number of loaded pages not yet released.
func (d *Doc) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Closes counts calls to Close.
func (d *Doc) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

type page struct {
	PageSpec
	doc      *Doc
	released bool
}

func (p *page) TextItems() ([]parser.TextItem, error) {
	if p.Panic {
		panic("corrupt page")
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Items, nil
}

func (p *page) Release() {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	p.doc.live--
}
