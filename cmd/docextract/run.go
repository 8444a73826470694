package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dgallion1/docextract/internal/config"
	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/pipeline"
)

type globalOptions struct {
	configPath string
	timeout    time.Duration
	maxBytes   int64
	progress   bool
	verbose    bool
}

func (o *globalOptions) config() (config.Config, error) {
	cfg := config.Load()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.timeout > 0 {
		cfg.ExtractTimeout = o.timeout
	}
	if o.maxBytes > 0 {
		cfg.MaxUploadBytes = o.maxBytes
	}
	return cfg, nil
}

func (o *globalOptions) logger(cfg config.Config, w io.Writer) *slog.Logger {
	// Quiet unless asked: stdout carries the extracted text.
	level := max(cfg.SlogLevel(), slog.LevelWarn)
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// extract runs one document through a Coordinator in-process. An interrupt
// cancels the job.
func (o *globalOptions) extract(ctx context.Context, path string, stderr io.Writer) (doctree.Result, error) {
	cfg, err := o.config()
	if err != nil {
		return doctree.Result{}, err
	}
	log := o.logger(cfg, stderr)
	slog.SetDefault(log)

	data, err := os.ReadFile(path)
	if err != nil {
		return doctree.Result{}, err
	}

	coord := pipeline.NewCoordinator(log,
		pipeline.WithMaxBytes(cfg.MaxUploadBytes),
		pipeline.WithTimeout(cfg.ExtractTimeout),
		pipeline.WithExtractor(pipeline.NewExtractor(pipeline.ExtractorFromConfig(cfg, log))),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sig)
		close(done)
	}()
	go func() {
		select {
		case <-sig:
			coord.Cancel()
		case <-done:
		}
	}()

	name := filepath.Base(path)
	var onProgress func(float64)
	if o.progress {
		onProgress = func(pct float64) {
			fmt.Fprintf(stderr, "\r%s %5.1f%%", name, pct)
		}
	}
	res, err := coord.Submit(ctx, data, name, onProgress)
	if o.progress {
		fmt.Fprintln(stderr)
	}
	return res, err
}
