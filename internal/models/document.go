package models

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// EntityIDMetadataKey is the object metadata key the search indexer maps to
// the index record.
const EntityIDMetadataKey = "entityId"

// ErrInvalidEntityID is returned when a blob name does not carry a GUID.
var ErrInvalidEntityID = errors.New("blob name is not a valid GUID")

// Format is the document type selected from the blob extension.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDocx  Format = "docx"
	FormatXlsx  Format = "xlsx"
	FormatOther Format = "other"
)

// FormatFromName maps a blob or file name to its Format.
func FormatFromName(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDocx
	case ".xlsx":
		return FormatXlsx
	default:
		return FormatOther
	}
}

// BlobRef identifies an object in a bucket.
type BlobRef struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// URI returns the gs:// form of the reference.
func (r BlobRef) URI() string {
	return fmt.Sprintf("gs://%s/%s", r.Bucket, r.Name)
}

// BaseName is the last segment of the object name without its extension.
func (r BlobRef) BaseName() string {
	base := path.Base(r.Name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// ParseBlobRef accepts either gs://bucket/object or a bare object name, which
// is resolved against defaultBucket.
func ParseBlobRef(uri, defaultBucket string) (BlobRef, error) {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "gs://"); ok {
		bucket, name, found := strings.Cut(rest, "/")
		if !found || bucket == "" || name == "" {
			return BlobRef{}, fmt.Errorf("malformed blob uri %q", uri)
		}
		return BlobRef{Bucket: bucket, Name: name}, nil
	}
	if uri == "" {
		return BlobRef{}, fmt.Errorf("empty blob reference")
	}
	if defaultBucket == "" {
		return BlobRef{}, fmt.Errorf("blob reference %q has no bucket and no default bucket is configured", uri)
	}
	return BlobRef{Bucket: defaultBucket, Name: strings.TrimPrefix(uri, "/")}, nil
}

// BlobInfo is a validated reference to a document waiting to be processed.
type BlobInfo struct {
	Ref      BlobRef
	EntityID uuid.UUID
}

// NewBlobInfo derives the entity identifier from the blob name. Names that
// are not GUIDs are rejected before anything is fetched.
func NewBlobInfo(ref BlobRef) (BlobInfo, error) {
	id, err := uuid.Parse(ref.BaseName())
	if err != nil {
		return BlobInfo{}, fmt.Errorf("%w: %s: %v", ErrInvalidEntityID, ref.URI(), err)
	}
	return BlobInfo{Ref: ref, EntityID: id}, nil
}

// Document is the fetched content of a source blob. It is not modified after
// the fetch.
type Document struct {
	Ref      BlobRef
	Format   Format
	Content  []byte
	Metadata map[string]string
}

// ExtractedImage is an embedded raster image large enough to be worth OCR.
type ExtractedImage struct {
	Index        int    // 1-based position in extraction order
	ObjectNumber int    // PDF object number the image was read from
	Width        int
	Height       int
	Format       string // png, jpeg, tiff
	Data         []byte
}
