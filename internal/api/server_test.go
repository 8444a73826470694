package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docextract/internal/config"
	"github.com/dgallion1/docextract/internal/pipeline"
)

const testKey = "test-key"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const guide = "# Guide\n\nIntro text.\n\n## Install\n\nRun it.\n"

func testConfig() config.Config {
	return config.Config{
		APIKey:          testKey,
		MaxUploadBytes:  1 << 20,
		ExtractTimeout:  5 * time.Second,
		WorkerCount:     1,
		MaxQueueSize:    4,
		JobTTL:          time.Hour,
		SkipFailedPages: true,
		BlocksPerPage:   2,
	}
}

func newTestServer(t *testing.T, cfg config.Config, start bool) *Server {
	t.Helper()
	orch := pipeline.NewOrchestrator(cfg, quiet)
	if start {
		orch.Start(context.Background())
		t.Cleanup(orch.Stop)
	}
	return NewServer(orch, quiet, cfg)
}

type upload struct {
	field, filename string
	body            []byte
}

func multipartRequest(t *testing.T, path string, parts ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(p.body)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

// submit uploads a document and returns its job ID.
func submit(t *testing.T, s *Server, filename string, body []byte) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, multipartRequest(t, "/api/extract", upload{"file", filename, body}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Job     pipeline.JobSnapshot `json:"job"`
		PollURL string               `json:"poll_url"`
	}
	decode(t, rec, &resp)
	if resp.PollURL != "/api/extract/"+resp.Job.ID {
		t.Errorf("unexpected poll url %q", resp.PollURL)
	}
	return resp.Job.ID
}

func waitCompleted(t *testing.T, s *Server, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var snap pipeline.JobSnapshot
		decode(t, do(t, s, http.MethodGet, "/api/extract/"+id), &snap)
		if snap.Status == pipeline.StatusCompleted {
			return
		}
		if snap.Status.Terminal() {
			t.Fatalf("job ended as %s: %s", snap.Status, snap.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for job, last status %s", snap.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t, testConfig(), false)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, testConfig(), false)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/formats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/formats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}

	if rec := do(t, s, http.MethodGet, "/api/formats"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rec.Code)
	}
}

func TestFormats(t *testing.T) {
	s := newTestServer(t, testConfig(), false)
	var resp struct {
		Formats []struct {
			Kind       string   `json:"kind"`
			Extensions []string `json:"extensions"`
		} `json:"formats"`
		MaxBytes int64 `json:"max_bytes"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/formats"), &resp)
	if len(resp.Formats) == 0 || resp.Formats[0].Kind != "pdf" {
		t.Errorf("expected pdf first, got %+v", resp.Formats)
	}
	if resp.MaxBytes != 1<<20 {
		t.Errorf("expected max_bytes %d, got %d", 1<<20, resp.MaxBytes)
	}
}

func TestExtract_FullFlow(t *testing.T) {
	s := newTestServer(t, testConfig(), true)
	id := submit(t, s, "guide.md", []byte(guide))
	waitCompleted(t, s, id)

	var res struct {
		FullText  string `json:"full_text"`
		PageCount int    `json:"page_count"`
		Name      string `json:"name"`
		Outline   []struct {
			Title     string `json:"title"`
			PageIndex int    `json:"page_index"`
			Level     int    `json:"level"`
		} `json:"outline"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/extract/"+id+"/result"), &res)
	if res.FullText != "Guide Intro text.\nInstall Run it." {
		t.Errorf("unexpected full text %q", res.FullText)
	}
	if res.PageCount != 2 || res.Name != "guide.md" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Outline) != 2 || res.Outline[1].PageIndex != 1 || res.Outline[1].Level != 1 {
		t.Errorf("unexpected outline %+v", res.Outline)
	}

	var sec struct {
		Section struct {
			StartPage int    `json:"start_page"`
			EndPage   int    `json:"end_page"`
			Text      string `json:"text"`
		} `json:"section"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/extract/"+id+"/section?start=2&end=2"), &sec)
	if sec.Section.Text != "Install Run it." {
		t.Errorf("expected page 2 text, got %q", sec.Section.Text)
	}

	decode(t, do(t, s, http.MethodGet, "/api/extract/"+id+"/section?entry=0"), &sec)
	if sec.Section.StartPage != 1 || sec.Section.EndPage != 1 || sec.Section.Text != "Guide Intro text." {
		t.Errorf("unexpected entry section %+v", sec.Section)
	}

	if rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/section?start=2&end=3"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range section, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/section?entry=9"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown entry, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/extract/"+id); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 cancelling a finished job, got %d", rec.Code)
	}
}

func TestSection_EntryWithoutOutline(t *testing.T) {
	s := newTestServer(t, testConfig(), true)
	id := submit(t, s, "notes.txt", []byte("just a paragraph of plain notes"))
	waitCompleted(t, s, id)

	rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/section?entry=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "document has no outline entries" {
		t.Errorf("unexpected error %q", body["error"])
	}

	// Page ranges still work without an outline.
	if rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/section?start=1&end=1"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for page range, got %d", rec.Code)
	}
}

func TestOutline_FlatAndTree(t *testing.T) {
	s := newTestServer(t, testConfig(), true)
	id := submit(t, s, "guide.md", []byte(guide))
	waitCompleted(t, s, id)

	var flat struct {
		Ranges []struct {
			StartPage int `json:"start_page"`
			EndPage   int `json:"end_page"`
		} `json:"ranges"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/extract/"+id+"/outline"), &flat)
	if len(flat.Ranges) != 2 || flat.Ranges[0].EndPage != 1 || flat.Ranges[1].StartPage != 2 {
		t.Errorf("unexpected ranges %+v", flat.Ranges)
	}

	var tree struct {
		Title    string `json:"title"`
		Children []struct {
			Title    string `json:"title"`
			Children []struct {
				Title string `json:"title"`
			} `json:"children"`
		} `json:"children"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/extract/"+id+"/outline?tree=true"), &tree)
	if len(tree.Children) != 1 || tree.Children[0].Title != "Guide" {
		t.Fatalf("unexpected tree %+v", tree)
	}
	if len(tree.Children[0].Children) != 1 || tree.Children[0].Children[0].Title != "Install" {
		t.Errorf("expected Install nested under Guide, got %+v", tree.Children[0].Children)
	}
}

func TestExtract_RejectsBadUploads(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 16
	s := newTestServer(t, cfg, false)

	tests := []struct {
		name     string
		filename string
		body     []byte
		want     int
	}{
		{"too large", "big.txt", bytes.Repeat([]byte("a"), 17), http.StatusRequestEntityTooLarge},
		{"unsupported extension", "image.png", []byte("\x89PNG\r\n\x1a\n"), http.StatusUnsupportedMediaType},
		{"mislabeled pdf", "fake.pdf", []byte("not a pdf"), http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, multipartRequest(t, "/api/extract", upload{"file", tt.filename, tt.body}))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, multipartRequest(t, "/api/extract", upload{"other", "a.txt", []byte("x")}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without file field, got %d", rec.Code)
	}
}

func TestJob_PendingAndCancelled(t *testing.T) {
	s := newTestServer(t, testConfig(), false)
	id := submit(t, s, "notes.txt", []byte("queued forever"))

	if rec := do(t, s, http.MethodGet, "/api/extract/"+id+"/result"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 before completion, got %d", rec.Code)
	}

	rec := do(t, s, http.MethodDelete, "/api/extract/"+id)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on cancel, got %d", rec.Code)
	}
	var snap pipeline.JobSnapshot
	decode(t, rec, &snap)
	if snap.Status != pipeline.StatusCancelled {
		t.Errorf("expected cancelled, got %q", snap.Status)
	}
	if rec := do(t, s, http.MethodDelete, "/api/extract/"+id); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on second cancel, got %d", rec.Code)
	}
}

func TestJob_NotFound(t *testing.T) {
	s := newTestServer(t, testConfig(), false)
	for _, path := range []string{"/api/extract/nope", "/api/extract/nope/result", "/api/extract/nope/outline"} {
		if rec := do(t, s, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	if rec := do(t, s, http.MethodDelete, "/api/extract/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on cancel, got %d", rec.Code)
	}
}

func TestBatchExtract(t *testing.T) {
	s := newTestServer(t, testConfig(), false)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, multipartRequest(t, "/api/extract/batch",
		upload{"files", "a.txt", []byte("first")},
		upload{"files", "b.exe", []byte("MZ")},
	))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decode(t, rec, &resp)
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Jobs))
	}
	if resp.Jobs[0]["job_id"] == nil {
		t.Errorf("expected first file queued, got %v", resp.Jobs[0])
	}
	if resp.Jobs[1]["status"] != float64(http.StatusUnsupportedMediaType) {
		t.Errorf("expected 415 for second file, got %v", resp.Jobs[1])
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, testConfig(), false)
	rec := do(t, s, http.MethodGet, "/api/stats/extract")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"jobs":0`) {
		t.Errorf("expected empty stats, got %s", rec.Body.String())
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\docs\book.epub`, "book.epub"},
		{"a..b.txt", "a_b.txt"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
