package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/documentindexflow/internal/models"
)

// IndexTrigger starts the downstream indexing workflow for a published
// artifact.
type IndexTrigger struct {
	client *executions.Client
	parent string
}

// NewIndexTrigger creates a trigger for the given workflow.
func NewIndexTrigger(ctx context.Context, projectID, location, workflowID string) (*IndexTrigger, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewIndexTrigger: projectID, location and workflowID cannot be empty")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &IndexTrigger{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}, nil
}

// Trigger starts one execution and returns its name.
func (t *IndexTrigger) Trigger(ctx context.Context, req models.IndexingRequest) (string, error) {
	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	execution, err := t.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: t.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return execution.GetName(), nil
}

func (t *IndexTrigger) Close() error {
	return t.client.Close()
}
