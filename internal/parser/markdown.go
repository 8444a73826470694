package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func openMarkdown(data []byte, opts Options) (Handle, error) {
	return newReflowDoc(markdownBlocks(data), nil, opts), nil
}

// markdownBlocks turns top-level goldmark nodes into blocks. Lists and
// quotes become one block per item or paragraph.
func markdownBlocks(src []byte) []block {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []block
	var visit func(n ast.Node)
	visit = func(n ast.Node) {
		switch node := n.(type) {
		case *ast.Heading:
			if t := extractText(node, src); t != "" {
				blocks = append(blocks, block{text: t, level: node.Level})
			}
		case *ast.List, *ast.Blockquote:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				visit(c)
			}
		case *ast.ListItem:
			if t := extractText(node, src); t != "" {
				blocks = append(blocks, block{text: t})
			}
		case *ast.ThematicBreak, *ast.HTMLBlock:
		default:
			if t := extractText(n, src); t != "" {
				blocks = append(blocks, block{text: t})
			}
		}
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		visit(n)
	}
	return blocks
}

// extractText gets the text content of a goldmark AST node. Line breaks
// become spaces.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.ChildCount() == 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
			buf.WriteByte(' ')
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		} else {
			if buf.Len() > 0 && c.Type() == ast.TypeBlock {
				buf.WriteByte(' ')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}
