package doctree

// PageSeparator joins page texts in Result.FullText. Line i of FullText is
// the text of page i+1, so it must never appear inside a page's text.
const PageSeparator = "\n"

// Result is the output of one extraction job. It is owned by the caller
// once returned.
type Result struct {
	FullText  string     `json:"full_text"`
	Outline   []TOCEntry `json:"outline"`
	PageCount int        `json:"page_count"`
	Name      string     `json:"name"`
}

// TOCEntry is one heading in a flat outline. Level is an indentation hint
// only (0 = top level); PageIndex is 0-based.
type TOCEntry struct {
	Title     string `json:"title"`
	PageIndex int    `json:"page_index"`
	Level     int    `json:"level"`
}

// Section is a contiguous, 1-based, inclusive page range re-sliced from a
// Result's full text.
type Section struct {
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	Text      string `json:"text"`
}

// DocTree is a nested view of a document outline.
type DocTree struct {
	Title    string     `json:"title"`
	Children []*DocNode `json:"children"`
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     `json:"title"`
	Page     int        `json:"page"` // 1-based page the heading starts on
	Children []*DocNode `json:"children,omitempty"`
}
