package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/pipeline"
	"github.com/dgallion1/docextract/internal/section"
)

// formOverhead is allowed on top of the upload limit for multipart framing.
const formOverhead = 1 << 20

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		formError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := header.Filename
	if v := r.FormValue("name"); v != "" {
		name = v
	}
	name = sanitizeFilename(name)

	data, err := s.readUpload(file)
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	job, err := s.orchestrator.Submit(name, data)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job":      job.Snapshot(),
		"poll_url": fmt.Sprintf("/api/extract/%s", job.ID),
	})
}

func (s *Server) handleBatchExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*int64(s.cfg.MaxQueueSize)+formOverhead)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		formError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		name := sanitizeFilename(fh.Filename)
		job, err := s.submitPart(fh, name)
		if err != nil {
			results = append(results, map[string]any{
				"filename": name,
				"error":    err.Error(),
				"status":   statusFor(err),
			})
			continue
		}
		results = append(results, map[string]any{
			"filename": name,
			"job_id":   job.ID,
			"status":   job.Snapshot().Status,
			"poll_url": fmt.Sprintf("/api/extract/%s", job.ID),
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) submitPart(fh *multipart.FileHeader, name string) (*pipeline.Job, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := s.readUpload(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return s.orchestrator.Submit(name, data)
}

// readUpload reads at most one byte past the limit so oversized files are
// still reported as such by validation.
func (s *Server) readUpload(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, s.cfg.MaxUploadBytes+1))
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.lookupJob(w, r)
	if job == nil {
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.orchestrator.Cancel(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if !ok {
		jsonError(w, fmt.Sprintf("job is %s", job.Snapshot().Status), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.completedResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	res, ok := s.completedResult(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("tree") == "true" {
		writeJSON(w, http.StatusOK, doctree.BuildTree(res.Name, res.Outline))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outline":    res.Outline,
		"ranges":     section.Ranges(res.Outline, res.PageCount),
		"page_count": res.PageCount,
	})
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	res, ok := s.completedResult(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	if v := q.Get("entry"); v != "" {
		idx, err := strconv.Atoi(v)
		ranges := section.Ranges(res.Outline, res.PageCount)
		if len(ranges) == 0 {
			jsonError(w, "document has no outline entries", http.StatusBadRequest)
			return
		}
		if err != nil || idx < 0 || idx >= len(ranges) {
			jsonError(w, fmt.Sprintf("entry must be between 0 and %d", len(ranges)-1), http.StatusBadRequest)
			return
		}
		rg := ranges[idx]
		writeJSON(w, http.StatusOK, map[string]any{
			"entry":   rg.Entry,
			"section": section.Of(res, rg.StartPage, rg.EndPage),
		})
		return
	}

	start, err1 := strconv.Atoi(q.Get("start"))
	end, err2 := strconv.Atoi(q.Get("end"))
	if err1 != nil || err2 != nil {
		jsonError(w, "start and end page numbers are required", http.StatusBadRequest)
		return
	}
	if start < 1 || end > res.PageCount || start > end {
		jsonError(w, fmt.Sprintf("invalid page range %d-%d (document has %d pages)", start, end, res.PageCount), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"section": section.Of(res, start, end),
	})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) *pipeline.Job {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
	}
	return job
}

func (s *Server) completedResult(w http.ResponseWriter, r *http.Request) (doctree.Result, bool) {
	job := s.lookupJob(w, r)
	if job == nil {
		return doctree.Result{}, false
	}
	res, ok := job.Result()
	if !ok {
		jsonError(w, fmt.Sprintf("job is %s", job.Snapshot().Status), http.StatusConflict)
		return doctree.Result{}, false
	}
	return res, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func formError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		jsonError(w, fmt.Sprintf("request exceeds %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
