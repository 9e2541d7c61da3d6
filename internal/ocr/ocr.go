// Package ocr defines the recognition contract used for embedded images and
// flattens recognition results into plain text.
package ocr

import (
	"context"
	"errors"
	"strings"
)

// AutoDetectLanguage asks the service to detect the language itself.
const AutoDetectLanguage = "unk"

// ErrInvalidImage is returned when the image stream cannot be opened, as
// opposed to a failure of the recognition service.
var ErrInvalidImage = errors.New("invalid image stream")

// Word is a single recognized word.
type Word struct {
	Text string `json:"text"`
}

// Line is a line of words in reading order.
type Line struct {
	Words []Word `json:"words"`
}

// Region is a block of lines.
type Region struct {
	Lines []Line `json:"lines"`
}

// Result is the hierarchical output of a recognition call.
type Result struct {
	Language    string   `json:"language,omitempty"`
	Orientation string   `json:"orientation,omitempty"`
	Regions     []Region `json:"regions"`
}

// Recognizer sends one image to a recognition service.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, language string, detectOrientation bool) (*Result, error)
}

// Options are the per-call recognition settings.
type Options struct {
	Language          string
	DetectOrientation bool
}

// DefaultOptions detects orientation and language automatically.
func DefaultOptions() Options {
	return Options{Language: AutoDetectLanguage, DetectOrientation: true}
}

// Flatten renders a result as plain text: words joined by one space, a line
// break after every line and a blank line after every region.
func Flatten(result *Result) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder
	for _, region := range result.Regions {
		for _, line := range region.Lines {
			for i, word := range line.Words {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word.Text)
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Scan recognizes one image and returns its flattened text.
func Scan(ctx context.Context, r Recognizer, image []byte, opts Options) (string, error) {
	result, err := r.Recognize(ctx, image, opts.Language, opts.DetectOrientation)
	if err != nil {
		return "", err
	}
	return Flatten(result), nil
}
