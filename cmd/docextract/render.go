package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/parser"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DDDDDD"))

	pageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	emptyStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#666666"))
)

// renderOutline prints one heading per line, indented by depth, with the
// 1-based page it starts on.
func renderOutline(w io.Writer, tree *doctree.DocTree, pageCount int) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(tree.Title), pageStyle.Render(fmt.Sprintf("(%d pages)", pageCount)))
	if len(tree.Children) == 0 {
		fmt.Fprintln(w, emptyStyle.Render("no outline"))
		return
	}
	tree.Walk(func(n *doctree.DocNode, depth int) {
		indent := strings.Repeat("  ", depth+1)
		fmt.Fprintf(w, "%s%s %s\n", indent, headingStyle.Render(n.Title), pageStyle.Render(fmt.Sprintf("p.%d", n.Page)))
	})
}

func renderFormats(w io.Writer, formats []parser.Format) {
	for _, f := range formats {
		pages := "synthesized pages"
		if f.Paginated {
			pages = "native pages"
		}
		fmt.Fprintf(w, "%-10s %-28s %s\n",
			headingStyle.Render(string(f.Kind)),
			strings.Join(f.Extensions, " "),
			pageStyle.Render(pages),
		)
	}
}
