package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Lllllllleong/documentindexflow/internal/extract"
	"github.com/Lllllllleong/documentindexflow/internal/gcp"
	"github.com/Lllllllleong/documentindexflow/internal/models"
	"github.com/Lllllllleong/documentindexflow/internal/ocr"
	"golang.org/x/sync/errgroup"
)

// ProcessorConfig holds all configuration for the document processor.
type ProcessorConfig struct {
	ProjectID         string
	SourceBucket      string
	IndexingBucket    string
	VertexAIRegion    string
	OCRModel          string
	OCRLanguage       string
	OCRPacing         time.Duration
	MinImageDimension int
	BatchConcurrency  int
	WorkflowID        string // empty disables the indexing trigger
	WorkflowLocation  string
}

// BlobStore is the storage side of the pipeline: the source of documents and
// the publisher of artifacts.
type BlobStore interface {
	Fetch(ctx context.Context, ref models.BlobRef) (*models.Document, error)
	Upload(ctx context.Context, data []byte, bucket, name string, metadata map[string]string) (string, error)
	Copy(ctx context.Context, src models.BlobRef, bucket, name string) (string, error)
	SetMetadata(ctx context.Context, ref models.BlobRef, key, value string) error
}

// DocumentExtractor pulls native text and embedded images out of documents.
type DocumentExtractor interface {
	ExtractText(src extract.Source, format models.Format) (string, error)
	ExtractImages(src extract.Source) ([]models.ExtractedImage, error)
}

// IndexTrigger notifies the downstream indexer of a published artifact.
type IndexTrigger interface {
	Trigger(ctx context.Context, req models.IndexingRequest) (string, error)
}

// Dependencies are the collaborators of a ProcessorFunction. Trigger and
// Logger are optional.
type Dependencies struct {
	Store      BlobStore
	Extractor  DocumentExtractor
	Recognizer ocr.Recognizer
	Trigger    IndexTrigger
	Logger     *slog.Logger
}

// ProcessorFunction holds the dependencies for the processing logic.
type ProcessorFunction struct {
	store      BlobStore
	extractor  DocumentExtractor
	recognizer ocr.Recognizer
	trigger    IndexTrigger
	config     ProcessorConfig
	ocrOptions ocr.Options
	logger     *slog.Logger
	closers    []func() error
}

// loadConfig loads and validates all necessary environment variables for this service.
func loadConfig() (*ProcessorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	indexingBucket := gcp.GetEnv("INDEXING_BUCKET", "")
	if indexingBucket == "" {
		return nil, fmt.Errorf("INDEXING_BUCKET environment variable must be set")
	}

	pacing, err := time.ParseDuration(gcp.GetEnv("OCR_PACING", "1s"))
	if err != nil {
		return nil, fmt.Errorf("OCR_PACING: %w", err)
	}
	minDim, err := strconv.Atoi(gcp.GetEnv("MIN_IMAGE_DIMENSION", "50"))
	if err != nil || minDim <= 0 {
		return nil, fmt.Errorf("MIN_IMAGE_DIMENSION must be a positive integer")
	}
	concurrency, err := strconv.Atoi(gcp.GetEnv("BATCH_CONCURRENCY", "4"))
	if err != nil || concurrency <= 0 {
		return nil, fmt.Errorf("BATCH_CONCURRENCY must be a positive integer")
	}

	return &ProcessorConfig{
		ProjectID:         projectID,
		SourceBucket:      gcp.GetEnv("SOURCE_BUCKET", "originaldocuments"),
		IndexingBucket:    indexingBucket,
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		OCRModel:          gcp.GetEnv("OCR_MODEL", "gemini-1.5-pro"),
		OCRLanguage:       gcp.GetEnv("OCR_LANGUAGE", ocr.AutoDetectLanguage),
		OCRPacing:         pacing,
		MinImageDimension: minDim,
		BatchConcurrency:  concurrency,
		WorkflowID:        gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:  gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}, nil
}

// NewProcessor creates a ProcessorFunction wired to GCS, Vertex AI and, when
// WORKFLOW_ID is set, the indexing workflow.
func NewProcessor(ctx context.Context) (*ProcessorFunction, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := gcp.NewBlobStore(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.OCRModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	deps := Dependencies{
		Store:      store,
		Extractor:  extract.New(extract.Config{MinImageDimension: config.MinImageDimension}),
		Recognizer: gcp.NewVisionRecognizer(vertexClient),
	}
	closers := []func() error{store.Close, vertexClient.Close}

	if config.WorkflowID != "" {
		trigger, err := gcp.NewIndexTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to create index trigger: %w", err)
		}
		deps.Trigger = trigger
		closers = append(closers, trigger.Close)
	}

	f := New(*config, deps)
	f.closers = closers
	slog.Info("Document processor initialized.", "indexingBucket", config.IndexingBucket, "ocrModel", config.OCRModel, "workflowId", config.WorkflowID)
	return f, nil
}

// New creates a ProcessorFunction from explicit configuration and collaborators.
func New(config ProcessorConfig, deps Dependencies) *ProcessorFunction {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = 1
	}
	opts := ocr.DefaultOptions()
	if config.OCRLanguage != "" {
		opts.Language = config.OCRLanguage
	}
	return &ProcessorFunction{
		store:      deps.Store,
		extractor:  deps.Extractor,
		recognizer: deps.Recognizer,
		trigger:    deps.Trigger,
		config:     config,
		ocrOptions: opts,
		logger:     logger,
	}
}

// Close releases the cloud clients created by NewProcessor.
func (f *ProcessorFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// ProcessURI validates a blob reference and processes it. The error is
// non-nil only when the reference is rejected before processing begins.
func (f *ProcessorFunction) ProcessURI(ctx context.Context, uri string) (models.ProcessingResult, error) {
	ref, err := models.ParseBlobRef(uri, f.config.SourceBucket)
	if err != nil {
		return models.ProcessingResult{}, err
	}
	info, err := models.NewBlobInfo(ref)
	if err != nil {
		f.logger.Error("Rejected document reference.", "blobUri", uri, "error", err)
		return models.ProcessingResult{}, err
	}
	return f.Process(ctx, info), nil
}

// ProcessBatch processes independent documents concurrently. Every reference
// gets its own isolated run; rejected references are reported in the joined
// error and leave a zero result at their position.
func (f *ProcessorFunction) ProcessBatch(ctx context.Context, uris []string) ([]models.ProcessingResult, error) {
	results := make([]models.ProcessingResult, len(uris))
	errs := make([]error, len(uris))

	var eg errgroup.Group
	eg.SetLimit(f.config.BatchConcurrency)
	for i, uri := range uris {
		eg.Go(func() error {
			results[i], errs[i] = f.ProcessURI(ctx, uri)
			return nil
		})
	}
	_ = eg.Wait()
	return results, errors.Join(errs...)
}

// Process runs one document through fetch, extraction and publishing. It
// always returns a result with a definite status.
func (f *ProcessorFunction) Process(ctx context.Context, info models.BlobInfo) models.ProcessingResult {
	logCtx := f.logger.With("gcsBucket", info.Ref.Bucket, "gcsObject", info.Ref.Name, "entityId", info.EntityID.String())
	logCtx.Info("Processing document.")

	doc, err := f.store.Fetch(ctx, info.Ref)
	if err != nil {
		return f.fail(logCtx, info, err)
	}

	if doc.Format == models.FormatOther {
		// Not a processable document type, just send it through for indexing.
		logCtx.Info("Unsupported document type. Passing through to indexing location.")
		location, err := f.passThrough(ctx, logCtx, info, doc)
		if err != nil {
			return f.fail(logCtx, info, err)
		}
		return f.finish(ctx, logCtx, info, models.ProcessingResult{Status: models.StatusSuccess, DocumentLocation: location})
	}

	text, err := f.extractText(ctx, logCtx, doc)
	var artifact []byte
	if err == nil {
		artifact, err = AssembleArtifact(text)
	}
	if err != nil {
		if !isRecoverable(err) {
			return f.fail(logCtx, info, err)
		}
		const warnMsg = "Document failed to get processed. Passing document along to indexing location"
		logCtx.Warn(warnMsg, "error", err)
		location, perr := f.passThrough(ctx, logCtx, info, doc)
		if perr != nil {
			return f.fail(logCtx, info, perr)
		}
		return f.finish(ctx, logCtx, info, models.ProcessingResult{
			Status:           models.StatusWarning,
			Message:          fmt.Sprintf("%s. Error: %v", warnMsg, err),
			DocumentLocation: location,
		})
	}

	location, err := f.store.Upload(ctx, artifact, f.config.IndexingBucket, info.Ref.BaseName(), map[string]string{
		models.EntityIDMetadataKey: info.EntityID.String(),
	})
	if err != nil {
		return f.fail(logCtx, info, err)
	}
	logCtx.Info("Indexable document created successfully.", "documentLocation", location, "bytes", len(artifact))
	return f.finish(ctx, logCtx, info, models.ProcessingResult{Status: models.StatusSuccess, DocumentLocation: location})
}

// extractText collects native text and, for PDFs, the OCR text of every
// embedded image.
func (f *ProcessorFunction) extractText(ctx context.Context, logCtx *slog.Logger, doc *models.Document) (string, error) {
	src := extract.NewSource(doc.Content)
	text, err := f.extractor.ExtractText(src, doc.Format)
	if err != nil {
		return "", err
	}
	if doc.Format != models.FormatPDF {
		return text, nil
	}

	images, err := f.extractor.ExtractImages(src)
	if err != nil {
		logCtx.Warn("Failed to scan pdf for images. Continuing with the text layer only.", "error", err)
		return text, nil
	}
	logCtx.Info("Extracted pdf images for OCR.", "imageCount", len(images))

	outcomes, err := f.recognizeImages(ctx, logCtx, images)
	if err != nil {
		return "", err
	}
	return mergeOCRText(text, outcomes), nil
}

// passThrough tags the source with the entity identifier, if it is not
// already tagged, and copies it to the indexing location.
func (f *ProcessorFunction) passThrough(ctx context.Context, logCtx *slog.Logger, info models.BlobInfo, doc *models.Document) (string, error) {
	if _, ok := doc.Metadata[models.EntityIDMetadataKey]; !ok {
		if err := f.store.SetMetadata(ctx, info.Ref, models.EntityIDMetadataKey, info.EntityID.String()); err != nil {
			return "", err
		}
		logCtx.Info("Metadata successfully added to file.")
	}
	return f.store.Copy(ctx, info.Ref, f.config.IndexingBucket, info.Ref.BaseName())
}

func (f *ProcessorFunction) finish(ctx context.Context, logCtx *slog.Logger, info models.BlobInfo, result models.ProcessingResult) models.ProcessingResult {
	if f.trigger != nil && result.Status != models.StatusFailure {
		execution, err := f.trigger.Trigger(ctx, models.IndexingRequest{
			EntityID:         info.EntityID.String(),
			DocumentLocation: result.DocumentLocation,
			Status:           string(result.Status),
		})
		if err != nil {
			logCtx.Error("Failed to trigger indexing workflow. Artifact remains published.", "error", err)
		} else {
			logCtx.Info("Indexing workflow triggered.", "execution", execution)
		}
	}
	logResult(logCtx, result)
	return result
}

func (f *ProcessorFunction) fail(logCtx *slog.Logger, info models.BlobInfo, err error) models.ProcessingResult {
	result := models.ProcessingResult{
		Status:  models.StatusFailure,
		Message: fmt.Sprintf("Failed to process document %s due to the following error: %v", info.Ref.Name, err),
	}
	logCtx.Error(result.Message, "error", err)
	logResult(logCtx, result)
	return result
}

func logResult(logCtx *slog.Logger, result models.ProcessingResult) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		logCtx.Error("Failed to marshal processing result.", "error", err)
		return
	}
	logCtx.Info("Processed blob result.", "status", result.Status, "result", string(resultJSON))
}

// isRecoverable reports extraction errors that downgrade a run to a warning
// with the original document published.
func isRecoverable(err error) bool {
	return errors.Is(err, extract.ErrUnreadableDocument) || errors.Is(err, ErrNothingExtracted)
}
