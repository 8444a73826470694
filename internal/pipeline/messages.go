package pipeline

import "github.com/dgallion1/docextract/internal/doctree"

// Message is sent from an extractor to its coordinator. ResultEvent and
// ErrorEvent are terminal; nothing follows them.
type Message interface {
	isMessage()
}

// ProgressEvent reports completion after each page, in page order.
type ProgressEvent struct {
	Percent float64
}

// ResultEvent carries the finished extraction.
type ResultEvent struct {
	Result doctree.Result
}

// ErrorEvent ends a job without a result.
type ErrorEvent struct {
	Err error
}

func (ProgressEvent) isMessage() {}
func (ResultEvent) isMessage()   {}
func (ErrorEvent) isMessage()    {}

// Message returns the error text.
func (e ErrorEvent) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
