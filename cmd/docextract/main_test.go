package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/parser"
)

func writeDoc(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const guide = "# Guide\n\nIntro text.\n\n## Install\n\nRun it.\n"

func TestTextCommand(t *testing.T) {
	path := writeDoc(t, "notes.txt", "First paragraph\ncontinues here.\n\nSecond paragraph.")
	out, err := run(t, "text", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "First paragraph continues here. Second paragraph.\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTextCommand_SizeLimit(t *testing.T) {
	path := writeDoc(t, "notes.txt", "more than ten bytes of text")
	if _, err := run(t, "text", "--max-bytes", "10", path); err == nil || !strings.Contains(err.Error(), "size limit") {
		t.Errorf("expected size limit error, got %v", err)
	}
}

func TestOutlineCommand(t *testing.T) {
	path := writeDoc(t, "guide.md", guide)
	out, err := run(t, "outline", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"guide.md", "(1 pages)", "  Guide p.1", "    Install p.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = run(t, "outline", "--json", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"title": "Install"`) || !strings.Contains(out, `"level": 1`) {
		t.Errorf("unexpected JSON output:\n%s", out)
	}
}

func TestSectionCommand(t *testing.T) {
	path := writeDoc(t, "notes.txt", "Only page.")
	out, err := run(t, "section", "--start", "1", "--end", "1", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Only page.\n" {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := run(t, "section", path); err == nil {
		t.Error("expected error without a range")
	}
	if _, err := run(t, "section", "--start", "1", "--end", "2", path); err == nil {
		t.Error("expected error for range past the end")
	}
}

func TestFormatsCommand(t *testing.T) {
	out, err := run(t, "formats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range parser.Formats {
		if !strings.Contains(out, string(f.Kind)) {
			t.Errorf("expected %s listed:\n%s", f.Kind, out)
		}
	}
}

func TestPickSection(t *testing.T) {
	res := doctree.Result{
		FullText:  "one\ntwo\nthree\nfour",
		PageCount: 4,
		Outline: []doctree.TOCEntry{
			{Title: "A", PageIndex: 0},
			{Title: "B", PageIndex: 2},
		},
	}

	sec, err := pickSection(res, true, 1, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sec.StartPage != 3 || sec.EndPage != 4 || sec.Text != "three\nfour" {
		t.Errorf("unexpected section %+v", sec)
	}

	sec, err = pickSection(res, false, 0, 2, 3)
	if err != nil || sec.Text != "two\nthree" {
		t.Errorf("expected pages 2-3, got %+v (%v)", sec, err)
	}

	if _, err := pickSection(res, true, 2, 0, 0); err == nil {
		t.Error("expected error for missing entry")
	}
	if _, err := pickSection(res, false, 0, 3, 2); err == nil {
		t.Error("expected error for reversed range")
	}
}

func TestRenderOutline_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderOutline(&buf, doctree.BuildTree("scan.pdf", nil), 3)
	if !strings.Contains(buf.String(), "no outline") {
		t.Errorf("expected empty marker, got %q", buf.String())
	}
}
