package parser

import (
	"fmt"
)

// block is a unit of reflowable content. level is 1-6 for headings and 0
// for body text.
type block struct {
	text  string
	level int
}

// blockRef is a direct reference to a block by position.
type blockRef int

// headingHeight maps a heading level to a nominal font size so that the
// font-size heuristic behaves on synthesized pages as it does on PDFs.
func headingHeight(level int) float64 {
	switch level {
	case 0:
		return 12
	case 1:
		return 24
	case 2:
		return 20
	case 3:
		return 18
	default:
		return 16
	}
}

// reflowDoc pages a flat list of blocks into fixed-size synthetic pages.
type reflowDoc struct {
	blocks  []block
	perPage int
	anchors map[string]int // element id -> block index
	closed  bool
}

func newReflowDoc(blocks []block, anchors map[string]int, opts Options) *reflowDoc {
	return &reflowDoc{blocks: blocks, perPage: opts.BlocksPerPage, anchors: anchors}
}

func (d *reflowDoc) PageCount() int {
	return (len(d.blocks) + d.perPage - 1) / d.perPage
}

func (d *reflowDoc) Close() error {
	d.blocks = nil
	d.anchors = nil
	d.closed = true
	return nil
}

func (d *reflowDoc) Page(num int) (Page, error) {
	if d.closed {
		return nil, fmt.Errorf("load page %d: document closed", num)
	}
	n := d.PageCount()
	if num < 1 || num > n {
		return nil, fmt.Errorf("load page %d: out of range 1..%d", num, n)
	}
	start := (num - 1) * d.perPage
	end := min(start+d.perPage, len(d.blocks))
	return &blockPage{blocks: d.blocks[start:end]}, nil
}

// Outline nests headings under the nearest preceding heading of a lower
// level. Headings carrying an id are addressed by name.
func (d *reflowDoc) Outline() ([]OutlineItem, error) {
	if d.closed {
		return nil, fmt.Errorf("read outline: document closed")
	}
	ids := make(map[int]string, len(d.anchors))
	for id, i := range d.anchors {
		if prev, ok := ids[i]; !ok || id < prev {
			ids[i] = id
		}
	}

	type stackEntry struct {
		item  *OutlineItem
		level int
	}
	root := &OutlineItem{}
	stack := []stackEntry{{item: root, level: 0}}

	for i, b := range d.blocks {
		if b.level == 0 || b.text == "" {
			continue
		}
		item := OutlineItem{Title: b.text, Dest: Dest{Ref: blockRef(i)}}
		if id, ok := ids[i]; ok {
			item.Dest = Dest{Name: id}
		}

		// Only ancestors stay on the stack, so the pointers below are not
		// invalidated by appends to a parent's Children.
		for len(stack) > 1 && stack[len(stack)-1].level >= b.level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].item
		parent.Children = append(parent.Children, item)
		stack = append(stack, stackEntry{item: &parent.Children[len(parent.Children)-1], level: b.level})
	}
	return root.Children, nil
}

func (d *reflowDoc) ResolveNamedDest(name string) (Ref, error) {
	if i, ok := d.anchors[name]; ok {
		return blockRef(i), nil
	}
	return nil, fmt.Errorf("resolve %q: %w", name, ErrNoDestination)
}

func (d *reflowDoc) PageIndex(ref Ref) (int, error) {
	r, ok := ref.(blockRef)
	if !ok || int(r) < 0 || int(r) >= len(d.blocks) {
		return 0, fmt.Errorf("reference %v: %w", ref, ErrNoDestination)
	}
	return int(r) / d.perPage, nil
}

type blockPage struct {
	blocks []block
}

func (p *blockPage) TextItems() ([]TextItem, error) {
	items := make([]TextItem, 0, len(p.blocks))
	for _, b := range p.blocks {
		items = append(items, TextItem{Text: b.text, Height: headingHeight(b.level)})
	}
	return items, nil
}

func (p *blockPage) Release() {
	p.blocks = nil
}
