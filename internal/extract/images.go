package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"maps"
	"slices"

	"github.com/Lllllllleong/documentindexflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/tiff"
)

// ExtractImages scans the PDF cross-reference table and returns every image
// XObject whose width and height reach the configured minimum. The result is
// in object-table order, which is not reading order.
//
// The first unexpected error stops the scan; the images found up to that
// point are returned and the error is only logged. A PDF that pdfcpu cannot
// even load returns ErrUnreadableDocument.
func (e *Extractor) ExtractImages(src Source) (images []models.ExtractedImage, err error) {
	// pdfcpu panics on some damaged cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			images, err = nil, fmt.Errorf("%w: pdf image reader panic: %v", ErrUnreadableDocument, r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(io.NewSectionReader(src, 0, src.Size()), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf: %v", ErrUnreadableDocument, err)
	}
	return e.scanImages(ctx), nil
}

func (e *Extractor) scanImages(ctx *model.Context) (images []models.ExtractedImage) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Image scan aborted.", "error", r, "imagesFound", len(images))
		}
	}()

	for _, objNr := range slices.Sorted(maps.Keys(ctx.Table)) {
		entry := ctx.Table[objNr]
		if entry == nil || entry.Free || entry.Object == nil {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok || !isImageStream(sd) {
			continue
		}

		img, err := pdfcpu.ExtractImage(ctx, &sd, false, fmt.Sprintf("Im%d", objNr), objNr, false)
		if err != nil {
			e.logger.Error("Image scan aborted.", "objNr", objNr, "error", err, "imagesFound", len(images))
			return images
		}
		if img == nil {
			// pdfcpu cannot render this filter.
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil {
			e.logger.Error("Image scan aborted.", "objNr", objNr, "error", err, "imagesFound", len(images))
			return images
		}

		extracted, keep, err := retainImage(data, e.cfg.MinImageDimension)
		if err != nil {
			e.logger.Error("Image scan aborted.", "objNr", objNr, "error", err, "imagesFound", len(images))
			return images
		}
		if !keep {
			continue
		}
		extracted.Index = len(images) + 1
		extracted.ObjectNumber = objNr
		images = append(images, extracted)
	}
	return images
}

func isImageStream(sd types.StreamDict) bool {
	subtype, found := sd.Find("Subtype")
	if !found {
		return false
	}
	name, ok := subtype.(types.Name)
	return ok && name == "Image"
}

// retainImage decodes the dimensions of a rendered image and reports whether
// both reach minDim. Small images are dropped without an error.
func retainImage(data []byte, minDim int) (models.ExtractedImage, bool, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.ExtractedImage{}, false, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width < minDim || cfg.Height < minDim {
		return models.ExtractedImage{}, false, nil
	}
	return models.ExtractedImage{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Data:   data,
	}, true, nil
}
