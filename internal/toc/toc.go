// Package toc discovers a flat table of contents for an open document.
//
// The embedded outline is preferred. When it yields nothing, headings are
// guessed from text items that are noticeably larger than the rest of
// their page.
package toc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/parser"
)

const (
	DefaultScanPages = 20

	// An item is a heading candidate when its height exceeds the page
	// average by this factor.
	headingRatio = 1.3

	minTitleLen = 3
	maxTitleLen = 100
)

var errNoTarget = errors.New("outline item has no destination")

// Options controls discovery.
type Options struct {
	// ScanPages caps how many leading pages the heuristic reads.
	ScanPages int
	// FallbackOnUnresolved runs the heuristic when an outline exists but
	// none of its items resolved to a page.
	FallbackOnUnresolved bool
	Logger               *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Discover returns the document's headings. It never fails: any error
// yields an empty, non-nil slice. A cancelled ctx cuts the heading scan
// short and returns what was found so far.
func Discover(ctx context.Context, h parser.Handle, opts Options) (entries []doctree.TOCEntry) {
	log := opts.logger()
	defer func() {
		if r := recover(); r != nil {
			log.Warn("toc discovery aborted", "panic", r)
			entries = []doctree.TOCEntry{}
		}
	}()

	outline, resolved := FromOutline(h, log)
	if len(outline) > 0 {
		if resolved > 0 || !opts.FallbackOnUnresolved {
			log.Debug("toc from outline", "entries", len(outline), "resolved", resolved)
			return outline
		}
		log.Info("outline has no resolvable destinations, using heading heuristic", "entries", len(outline))
	}

	scan := opts.ScanPages
	if scan <= 0 {
		scan = DefaultScanPages
	}
	entries = FromHeadings(ctx, h, scan, log)
	if len(entries) == 0 && len(outline) > 0 {
		log.Debug("heading heuristic found nothing, keeping unresolved outline", "entries", len(outline))
		return outline
	}
	log.Debug("toc from heading heuristic", "entries", len(entries))
	return entries
}

// FromOutline flattens the embedded outline in depth-first pre-order and
// reports how many items resolved to a page. Unresolved items point at
// page 0.
func FromOutline(h parser.Handle, log *slog.Logger) ([]doctree.TOCEntry, int) {
	items, err := h.Outline()
	if err != nil {
		log.Warn("read outline failed", "error", err)
		return []doctree.TOCEntry{}, 0
	}

	type frame struct {
		item  parser.OutlineItem
		level int
	}
	stack := make([]frame, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		stack = append(stack, frame{item: items[i], level: 0})
	}

	entries := []doctree.TOCEntry{}
	resolved := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, err := resolve(h, f.item.Dest)
		if err != nil {
			log.Warn("outline destination unresolved", "title", f.item.Title, "error", err)
			idx = 0
		} else {
			resolved++
		}
		entries = append(entries, doctree.TOCEntry{
			Title:     strings.TrimSpace(f.item.Title),
			PageIndex: idx,
			Level:     f.level,
		})

		children := f.item.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{item: children[i], level: f.level + 1})
		}
	}
	return entries, resolved
}

func resolve(h parser.Handle, dest parser.Dest) (idx int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolve destination: %v", r)
		}
	}()

	ref := dest.Ref
	if dest.Name != "" {
		ref, err = h.ResolveNamedDest(dest.Name)
		if err != nil {
			return 0, err
		}
	}
	if ref == nil {
		return 0, errNoTarget
	}
	idx, err = h.PageIndex(ref)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= h.PageCount() {
		return 0, fmt.Errorf("page index %d out of range", idx)
	}
	return idx, nil
}

// FromHeadings scans the first scanPages pages for oversized text. Each
// page is released before the next is loaded; a page that fails is skipped.
// The scan stops early once ctx is done.
func FromHeadings(ctx context.Context, h parser.Handle, scanPages int, log *slog.Logger) []doctree.TOCEntry {
	n := min(scanPages, h.PageCount())

	type key struct {
		page  int
		title string
	}
	seen := make(map[key]bool)
	entries := []doctree.TOCEntry{}

	for num := 1; num <= n; num++ {
		if ctx.Err() != nil {
			log.Debug("heading scan stopped", "page", num, "cause", context.Cause(ctx))
			break
		}
		for _, e := range scanPage(h, num, log) {
			k := key{page: e.PageIndex, title: e.Title}
			if seen[k] {
				continue
			}
			seen[k] = true
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PageIndex < entries[j].PageIndex
	})
	return entries
}

func scanPage(h parser.Handle, num int, log *slog.Logger) (found []doctree.TOCEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("heading scan skipped page", "page", num, "panic", r)
			found = nil
		}
	}()

	page, err := h.Page(num)
	if err != nil {
		log.Debug("heading scan skipped page", "page", num, "error", err)
		return nil
	}
	defer page.Release()

	items, err := page.TextItems()
	if err != nil {
		log.Debug("heading scan skipped page", "page", num, "error", err)
		return nil
	}

	var sum float64
	var count int
	for _, it := range items {
		if it.Height > 0 {
			sum += it.Height
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)

	for _, it := range items {
		if it.Height <= headingRatio*avg {
			continue
		}
		title := strings.TrimSpace(it.Text)
		if !isHeadingText(title) {
			continue
		}
		found = append(found, doctree.TOCEntry{
			Title:     title,
			PageIndex: num - 1,
			Level:     levelFor(it.Height / avg),
		})
	}
	return found
}

// isHeadingText rejects fragments, symbol runs and all-caps text such as
// running headers and page numbers.
func isHeadingText(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < minTitleLen || n > maxTitleLen {
		return false
	}
	if strings.ToUpper(s) == s {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func levelFor(ratio float64) int {
	switch {
	case ratio >= 2.0:
		return 0
	case ratio >= 1.5:
		return 1
	default:
		return 2
	}
}
