package pipeline

import (
	"errors"
	"fmt"

	"github.com/dgallion1/docextract/internal/parser"
)

// DefaultMaxBytes is the default upload ceiling (50 MiB).
const DefaultMaxBytes int64 = 50 << 20

var (
	ErrSizeExceeded    = errors.New("document exceeds size limit")
	ErrUnsupportedType = parser.ErrUnsupportedType
	ErrOpenFailure     = errors.New("document could not be opened")
	ErrExtraction      = errors.New("text extraction failed")
	ErrTimeout         = errors.New("extraction timed out")
	ErrCancelled       = errors.New("extraction cancelled")
	ErrBusy            = errors.New("an extraction is already in progress")
	ErrQueueFull       = errors.New("job queue is full")
)

// Validate checks size and type before any work is started.
func Validate(data []byte, name string, maxBytes int64) (parser.Kind, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrSizeExceeded, len(data), maxBytes)
	}
	return parser.Detect(name, data)
}
