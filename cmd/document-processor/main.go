package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentindexflow/internal/models"
	"github.com/Lllllllleong/documentindexflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
)

var (
	processorInstance *services.ProcessorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// A .env file only exists for local runs of the function.
	_ = godotenv.Load()

	functions.CloudEvent("ProcessDocument", processDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// processDocument is the Cloud Function entry point for queue messages that
// name one or more uploaded documents.
func processDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		processorInstance, initErr = services.NewProcessor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var msg models.MessagePublishedData
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	var req models.ProcessDocumentRequest
	if err := json.Unmarshal(msg.Message.Data, &req); err != nil {
		slog.Error("Failed to unmarshal queue message", "error", err, "messageId", msg.Message.MessageID)
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	uris := req.URIs()
	if len(uris) == 0 {
		slog.Warn("Queue message named no documents.", "messageId", msg.Message.MessageID)
		return nil
	}

	results, batchErr := processorInstance.ProcessBatch(ctx, uris)
	for i, result := range results {
		if result.Status == models.StatusFailure {
			slog.Error("Document processing failed.", "blobUri", uris[i], "message", result.Message)
		}
	}
	if batchErr != nil {
		// Processing outcomes are already final; only rejected references surface here.
		slog.Error("Some document references were rejected.", "messageId", msg.Message.MessageID, "error", batchErr)
		return batchErr
	}
	return nil
}
