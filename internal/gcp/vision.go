package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentindexflow/internal/ocr"
	"github.com/santhosh-tekuri/jsonschema/v5"
	_ "golang.org/x/image/tiff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// contentGenerator is the part of *genai.GenerativeModel the recognizer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VisionRecognizer implements ocr.Recognizer on the Vertex AI OCR model.
// It does not retry or rate-limit; pacing is the caller's concern.
type VisionRecognizer struct {
	model contentGenerator
}

// NewVisionRecognizer wraps the OCR model of a VertexClient.
func NewVisionRecognizer(c *VertexClient) *VisionRecognizer {
	return &VisionRecognizer{model: c.OCRModel}
}

// Recognize transcribes one image. Streams that do not decode as an image,
// or that the service rejects as invalid, return ocr.ErrInvalidImage.
func (r *VisionRecognizer) Recognize(ctx context.Context, img []byte, language string, detectOrientation bool) (*ocr.Result, error) {
	format, data, err := normalizeImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ocr.ErrInvalidImage, err)
	}

	resp, err := r.model.GenerateContent(ctx,
		genai.ImageData(format, data),
		genai.Text(ocrPrompt(language, detectOrientation)),
	)
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return nil, fmt.Errorf("%w: %v", ocr.ErrInvalidImage, err)
		}
		return nil, fmt.Errorf("failed to recognize text with gemini: %w", err)
	}

	return parseOCRResponse(resp)
}

// normalizeImage returns an image the model accepts. PNG and JPEG pass
// through; other decodable formats (TIFF) are re-encoded as PNG.
func normalizeImage(img []byte) (string, []byte, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", nil, fmt.Errorf("decode image: %w", err)
	}
	if format == "png" || format == "jpeg" {
		return format, img, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return "", nil, fmt.Errorf("re-encode %s image as png: %w", format, err)
	}
	return "png", buf.Bytes(), nil
}

func ocrPrompt(language string, detectOrientation bool) string {
	languageRule := "Detect the language of the text automatically and report it as an ISO 639-1 code in \"language\"."
	if language != "" && language != ocr.AutoDetectLanguage {
		languageRule = fmt.Sprintf("The text is expected to be in the language with ISO 639-1 code %q; report it in \"language\".", language)
	}
	orientationRule := "Assume the image is upright."
	if detectOrientation {
		orientationRule = "Detect whether the image is rotated (Up, Down, Left, Right), read the text in its upright orientation and report the detected rotation in \"orientation\"."
	}
	return fmt.Sprintf(OCRUserPrompt, languageRule, orientationRule)
}

// parseOCRResponse decodes the JSON text part of the model response. An empty
// response means no text was found.
func parseOCRResponse(resp *genai.GenerateContentResponse) (*ocr.Result, error) {
	raw := extractJSONContent(resp)
	if raw == "" {
		return &ocr.Result{}, nil
	}
	if err := validateOCRJSON([]byte(raw)); err != nil {
		return nil, err
	}
	var result ocr.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse OCR JSON from model: %w", err)
	}
	return &result, nil
}

// ocrResultJSONSchema mirrors ocrResponseSchema for checking the decoded
// model output.
var ocrResultJSONSchema = map[string]any{
	"type":     "object",
	"required": []string{"regions"},
	"properties": map[string]any{
		"language":    map[string]any{"type": "string"},
		"orientation": map[string]any{"type": "string"},
		"regions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"lines"},
				"properties": map[string]any{
					"lines": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":     "object",
							"required": []string{"words"},
							"properties": map[string]any{
								"words": map[string]any{
									"type": "array",
									"items": map[string]any{
										"type":       "object",
										"required":   []string{"text"},
										"properties": map[string]any{"text": map[string]any{"type": "string"}},
									},
								},
							},
						},
					},
				},
			},
		},
	},
}

var compileOCRSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(ocrResultJSONSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ocr.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("ocr.json")
})

// validateOCRJSON rejects model output that does not have the region, line
// and word structure.
func validateOCRJSON(data []byte) error {
	schema, err := compileOCRSchema()
	if err != nil {
		return fmt.Errorf("compile OCR schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse OCR JSON from model: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("OCR JSON does not match schema: %w", err)
	}
	return nil
}

// extractJSONContent gets the raw text content from the model response.
func extractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	// Clean potential markdown fences just in case
	cleanJSON := strings.TrimSpace(sb.String())
	cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
	cleanJSON = strings.TrimSuffix(cleanJSON, "```")
	return strings.TrimSpace(cleanJSON)
}
