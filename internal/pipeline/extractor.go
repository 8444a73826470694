package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/parser"
	"github.com/dgallion1/docextract/internal/toc"
)

// OpenFunc opens a document handle. parser.Open is the default.
type OpenFunc func(kind parser.Kind, data []byte, opts parser.Options) (parser.Handle, error)

// ExtractorConfig configures an extractor.
type ExtractorConfig struct {
	TOC    toc.Options
	Parser parser.Options
	// SkipFailedPages records an empty page instead of failing the job
	// when a page's text cannot be read.
	SkipFailedPages bool
	Open            OpenFunc
	Logger          *slog.Logger
}

// Request is one extraction job. The extractor takes ownership of Data.
type Request struct {
	Data []byte
	Name string
	Kind parser.Kind
}

// Extractor runs extraction jobs. Each job gets its own goroutine and
// shares nothing with the caller but the returned channel.
type Extractor struct {
	cfg ExtractorConfig
	log *slog.Logger
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.Open == nil {
		cfg.Open = parser.Open
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.TOC.Logger == nil {
		cfg.TOC.Logger = log
	}
	return &Extractor{cfg: cfg, log: log}
}

var pageSeparators = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Start launches a job. The channel is closed after the terminal message,
// or early if ctx is cancelled; the document handle is closed before that.
func (e *Extractor) Start(ctx context.Context, req Request) <-chan Message {
	out := make(chan Message)
	go e.run(ctx, req, out)
	return out
}

func (e *Extractor) run(ctx context.Context, req Request, out chan<- Message) {
	defer close(out)
	log := e.log.With("name", req.Name, "kind", req.Kind)

	send := func(m Message) bool {
		select {
		case out <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("extractor panic", "panic", r)
			send(ErrorEvent{Err: fmt.Errorf("%w: %v", ErrExtraction, r)})
		}
	}()

	start := time.Now()
	h, err := e.cfg.Open(req.Kind, req.Data, e.cfg.Parser)
	req.Data = nil
	if err != nil {
		log.Warn("open failed", "error", err)
		send(ErrorEvent{Err: fmt.Errorf("%w: %v", ErrOpenFailure, err)})
		return
	}
	defer h.Close()

	outline := toc.Discover(ctx, h, e.cfg.TOC)

	n := h.PageCount()
	var full strings.Builder
	for num := 1; num <= n; num++ {
		if ctx.Err() != nil {
			log.Info("extraction stopped", "page", num, "cause", context.Cause(ctx))
			return
		}

		text, err := pageText(h, num)
		if err != nil {
			if !e.cfg.SkipFailedPages {
				send(ErrorEvent{Err: fmt.Errorf("%w: page %d: %v", ErrExtraction, num, err)})
				return
			}
			log.Warn("page text failed, leaving page empty", "page", num, "error", err)
			text = ""
		}
		if num > 1 {
			full.WriteString(doctree.PageSeparator)
		}
		full.WriteString(text)

		if !send(ProgressEvent{Percent: float64(num) / float64(n) * 100}) {
			return
		}
	}

	log.Info("extraction complete",
		"pages", n,
		"outline_entries", len(outline),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	send(ResultEvent{Result: doctree.Result{
		FullText:  full.String(),
		Outline:   outline,
		PageCount: n,
		Name:      req.Name,
	}})
}

// pageText joins a page's items with spaces and composes the result to NFC,
// since PDF fonts often emit base letters and accents as separate glyphs.
// The page is released before returning, including on panic.
func pageText(h parser.Handle, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page, err := h.Page(num)
	if err != nil {
		return "", err
	}
	defer page.Release()

	items, err := page.TextItems()
	if err != nil {
		return "", err
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Text
	}
	return norm.NFC.String(pageSeparators.Replace(strings.Join(parts, " "))), nil
}
