// Package extract pulls machine-readable text and embedded raster images out
// of uploaded documents.
//
// Supported formats:
//   - .pdf: text layer via ledongthuc/pdf, embedded images via pdfcpu
//   - .docx: word/document.xml body plus embedded .docx/.xlsx packages
//   - .xlsx: cell values with shared strings resolved, via excelize
//
// Extractors keep no state between calls; every call works only on the
// bytes it is given.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/documentindexflow/internal/models"
)

// ErrUnreadableDocument marks a document whose top-level container cannot be
// opened at all.
var ErrUnreadableDocument = errors.New("document could not be read")

// ErrUnsupportedFormat is returned for formats without a text extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

const (
	defaultMinImageDimension = 50
	defaultMaxEmbedDepth     = 4
)

// Source is a readable byte source of known size. *bytes.Reader satisfies it.
type Source interface {
	io.ReaderAt
	Size() int64
}

// NewSource wraps an in-memory document.
func NewSource(b []byte) Source {
	return bytes.NewReader(b)
}

// Config configures an Extractor.
type Config struct {
	// MinImageDimension is the smallest width and height an embedded image
	// must have to be kept (default: 50 px).
	MinImageDimension int

	// MaxEmbedDepth bounds recursion into embedded packages (default: 4).
	MaxEmbedDepth int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MinImageDimension <= 0 {
		c.MinImageDimension = defaultMinImageDimension
	}
	if c.MaxEmbedDepth <= 0 {
		c.MaxEmbedDepth = defaultMaxEmbedDepth
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor extracts text and images from documents.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// ExtractText returns the native text of a document. Formats other than PDF,
// Word and spreadsheet return ErrUnsupportedFormat.
func (e *Extractor) ExtractText(src Source, format models.Format) (string, error) {
	return e.extractText(src, format, 0)
}

func (e *Extractor) extractText(src Source, format models.Format, depth int) (text string, err error) {
	// The parsing libraries panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %s parser panic: %v", ErrUnreadableDocument, format, r)
		}
	}()

	switch format {
	case models.FormatPDF:
		return e.extractPDFText(src)
	case models.FormatDocx:
		return e.extractWordText(src, depth)
	case models.FormatXlsx:
		return e.extractSheetText(src)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
