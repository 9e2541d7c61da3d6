package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentindexflow/internal/models"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BlobStore fetches source documents and publishes artifacts to GCS.
type BlobStore struct {
	client    *storage.Client
	projectID string

	// buckets already known to exist
	ensured sync.Map
}

// NewBlobStore creates a BlobStore. projectID is used when a destination
// bucket has to be created.
func NewBlobStore(ctx context.Context, projectID string) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &BlobStore{client: client, projectID: projectID}, nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}

// Fetch downloads the full content and the metadata of an object. The
// content is read from the generation the metadata was read from, so an
// overwrite in between fails the fetch instead of mixing two versions.
func (s *BlobStore) Fetch(ctx context.Context, ref models.BlobRef) (*models.Document, error) {
	return fetchObject(ctx, ref, gcsObject{s.client.Bucket(ref.Bucket).Object(ref.Name)})
}

// objectSource is the part of an object handle Fetch reads through.
type objectSource interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewGenerationReader(ctx context.Context, generation int64) (io.ReadCloser, error)
}

type gcsObject struct {
	obj *storage.ObjectHandle
}

func (o gcsObject) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return o.obj.Attrs(ctx)
}

func (o gcsObject) NewGenerationReader(ctx context.Context, generation int64) (io.ReadCloser, error) {
	return o.obj.Generation(generation).NewReader(ctx)
}

func fetchObject(ctx context.Context, ref models.BlobRef, src objectSource) (*models.Document, error) {
	attrs, err := src.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes of %s: %w", ref.URI(), err)
	}

	reader, err := src.NewGenerationReader(ctx, attrs.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s (generation %d): %w", ref.URI(), attrs.Generation, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", ref.URI(), err)
	}

	metadata := make(map[string]string, len(attrs.Metadata))
	for k, v := range attrs.Metadata {
		metadata[k] = v
	}
	return &models.Document{
		Ref:      ref,
		Format:   models.FormatFromName(ref.Name),
		Content:  content,
		Metadata: metadata,
	}, nil
}

// Upload writes data to bucket/name with the given metadata, overwriting any
// previous artifact, and returns the object URI.
func (s *BlobStore) Upload(ctx context.Context, data []byte, bucket, name string, metadata map[string]string) (string, error) {
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}

	writer := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	writer.Metadata = metadata

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return models.BlobRef{Bucket: bucket, Name: name}.URI(), nil
}

// Copy copies src server-side to bucket/name and returns the destination URI.
// Object metadata travels with the copy.
func (s *BlobStore) Copy(ctx context.Context, src models.BlobRef, bucket, name string) (string, error) {
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}

	srcObj := s.client.Bucket(src.Bucket).Object(src.Name)
	dstObj := s.client.Bucket(bucket).Object(name)
	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		return "", fmt.Errorf("failed to copy %s to gs://%s/%s: %w", src.URI(), bucket, name, err)
	}
	return models.BlobRef{Bucket: bucket, Name: name}.URI(), nil
}

// SetMetadata merges one metadata key into the object's metadata. The update
// is rejected if the metadata changed since it was read.
func (s *BlobStore) SetMetadata(ctx context.Context, ref models.BlobRef, key, value string) error {
	obj := s.client.Bucket(ref.Bucket).Object(ref.Name)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read attributes of %s: %w", ref.URI(), err)
	}

	metadata := make(map[string]string, len(attrs.Metadata)+1)
	for k, v := range attrs.Metadata {
		metadata[k] = v
	}
	metadata[key] = value

	update := storage.ObjectAttrsToUpdate{Metadata: metadata}
	if _, err := obj.If(storage.Conditions{MetagenerationMatch: attrs.Metageneration}).Update(ctx, update); err != nil {
		return fmt.Errorf("failed to set metadata %q on %s: %w", key, ref.URI(), err)
	}
	return nil
}

// ensureBucket creates the bucket if it does not exist yet.
func (s *BlobStore) ensureBucket(ctx context.Context, bucket string) error {
	if _, ok := s.ensured.Load(bucket); ok {
		return nil
	}

	handle := s.client.Bucket(bucket)
	_, err := handle.Attrs(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrBucketNotExist):
		slog.Info("Creating missing destination bucket.", "bucket", bucket)
		if err := handle.Create(ctx, s.projectID, nil); err != nil && !isConflict(err) {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	default:
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	s.ensured.Store(bucket, struct{}{})
	return nil
}

// isConflict reports a create that lost a race with another creator.
func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
