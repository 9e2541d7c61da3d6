package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentindexflow/internal/models"
	"github.com/Lllllllleong/documentindexflow/internal/ocr"
)

// ocrOutcome is one recognition attempt. index is 1-based.
type ocrOutcome struct {
	index int
	text  string
	err   error
}

// recognizeImages runs OCR on each image in order, one call at a time. A
// failed image is logged and skipped. After every successful call the run
// waits the pacing delay, which keeps a single run under the OCR service's
// per-second cap. Only context cancellation aborts the loop.
func (f *ProcessorFunction) recognizeImages(ctx context.Context, logCtx *slog.Logger, images []models.ExtractedImage) ([]ocrOutcome, error) {
	outcomes := make([]ocrOutcome, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ordinal := i + 1
		text, err := ocr.Scan(ctx, f.recognizer, img.Data, f.ocrOptions)
		outcomes = append(outcomes, ocrOutcome{index: ordinal, text: text, err: err})

		switch {
		case errors.Is(err, ocr.ErrInvalidImage):
			logCtx.Warn("Failed to open pdf image.", "image", ordinal, "imageCount", len(images), "objNr", img.ObjectNumber, "error", err)
			continue
		case err != nil:
			logCtx.Warn("Failed to OCR scan pdf image.", "image", ordinal, "imageCount", len(images), "objNr", img.ObjectNumber, "error", err)
			continue
		}

		logCtx.Info("OCR completed successfully for pdf image.", "image", ordinal, "imageCount", len(images))
		if err := pace(ctx, f.config.OCRPacing); err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// mergeOCRText appends every successful, non-empty OCR fragment to the
// native text in extraction order.
func mergeOCRText(native string, outcomes []ocrOutcome) string {
	var sb strings.Builder
	sb.WriteString(native)
	for _, o := range outcomes {
		if o.err != nil || strings.TrimSpace(o.text) == "" {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(o.text)
	}
	return sb.String()
}

func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
