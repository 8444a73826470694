package section

import (
	"log/slog"
	"strings"

	"github.com/dgallion1/docextract/internal/doctree"
)

// Slice returns the text of pages start..end (1-based, inclusive) from a
// full text whose lines are pages. Invalid ranges yield "".
//
// The page count of fullText is not re-checked: a page whose text contained
// the separator would shift every later page.
func Slice(fullText string, start, end, total int) string {
	if start < 1 || end > total || start > end || total < 1 {
		slog.Warn("invalid section range", "start", start, "end", end, "total", total)
		return ""
	}
	if start == 1 && end == total {
		return fullText
	}

	pages := strings.Split(fullText, doctree.PageSeparator)
	if start > len(pages) {
		return ""
	}
	return strings.Join(pages[start-1:min(end, len(pages))], doctree.PageSeparator)
}

// Of slices a section out of an extraction result.
func Of(res doctree.Result, start, end int) doctree.Section {
	return doctree.Section{
		StartPage: start,
		EndPage:   end,
		Text:      Slice(res.FullText, start, end, res.PageCount),
	}
}

// Range is the page span covered by one outline entry.
type Range struct {
	Entry     doctree.TOCEntry `json:"entry"`
	StartPage int              `json:"start_page"`
	EndPage   int              `json:"end_page"`
}

// Ranges maps each outline entry to the pages it covers: from its own page
// up to the page before the next entry that starts later, or the end of
// the document. Entries must be ordered by page.
func Ranges(outline []doctree.TOCEntry, pageCount int) []Range {
	if pageCount < 1 {
		return nil
	}
	ranges := make([]Range, 0, len(outline))
	for i, e := range outline {
		start := min(e.PageIndex+1, pageCount)
		end := pageCount
		for _, next := range outline[i+1:] {
			if next.PageIndex+1 > start {
				end = min(next.PageIndex, pageCount)
				break
			}
		}
		ranges = append(ranges, Range{Entry: e, StartPage: start, EndPage: end})
	}
	return ranges
}
