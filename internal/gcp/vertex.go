package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are an optical character recognition engine. Your task is to transcribe every piece of printed or handwritten text visible in an image, exactly as written. You must output your response as a valid JSON object."
const OCRUserPrompt = `Transcribe all text in the provided image.

Follow these rules precisely:
1.  Group the text into regions: blocks of text that belong together visually (a paragraph, a table cell, a caption, a stamp).
2.  Within each region, list the lines from top to bottom, and within each line the words from left to right in reading order.
3.  Copy words exactly. Do not translate, correct spelling, summarise or add text that is not visible in the image.
4.  %s
5.  %s
6.  If the image contains no text, return an empty "regions" array.

Example output format:
{
  "language": "en",
  "orientation": "Up",
  "regions": [
    {"lines": [{"words": [{"text": "Invoice"}, {"text": "42"}]}]}
  ]
}`

// ocrResponseSchema constrains the OCR model to regions -> lines -> words.
var ocrResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"language":    {Type: genai.TypeString},
		"orientation": {Type: genai.TypeString},
		"regions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"lines": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"words": {
									Type: genai.TypeArray,
									Items: &genai.Schema{
										Type:       genai.TypeObject,
										Properties: map[string]*genai.Schema{"text": {Type: genai.TypeString}},
										Required:   []string{"text"},
									},
								},
							},
							Required: []string{"words"},
						},
					},
				},
				Required: []string{"lines"},
			},
		},
	},
	Required: []string{"regions"},
}

// VertexClient holds the pre-configured generative models for the pipeline.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a new client holding the OCR model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" || modelName == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID, region and modelName cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		// Structured output is what lets the response be flattened region by region.
		ResponseMIMEType: "application/json",
		ResponseSchema:   ocrResponseSchema,
		Temperature:      genai.Ptr[float32](0.0),
	}
	ocrModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
