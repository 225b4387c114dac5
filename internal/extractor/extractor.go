package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ledgerflow/ingestor/internal/model"
)

// Extract turns a document file into a raw extraction payload. It resolves
// a VisionClient for providerHint (or the configured fallback chain if
// providerHint is empty/"auto"), makes one attempt with the standard
// extraction prompt, and — only when the provider's response fails to
// parse as a JSON object — retries once with a corrective prompt. Any
// other failure (unsupported type, missing credentials, provider error)
// is returned immediately without a retry.
func Extract(ctx context.Context, filePath, providerHint string, cfg ProviderConfig) (model.ExtractionPayload, error) {
	mimeType, err := mimeForPath(filePath)
	if err != nil {
		return model.ExtractionPayload{}, err
	}

	client, modelName, err := buildClient(providerHint, cfg)
	if err != nil {
		return model.ExtractionPayload{}, err
	}

	return extractWithClient(ctx, client, filePath, mimeType, modelName)
}

func extractWithClient(ctx context.Context, client VisionClient, filePath, mimeType, modelName string) (model.ExtractionPayload, error) {
	text, err := client.ExtractJSON(ctx, filePath, mimeType, modelName, userExtractionPrompt)
	if err != nil {
		return model.ExtractionPayload{}, err
	}

	fields, parseErr := parseJSONObject(text)
	if parseErr != nil {
		text, err = client.ExtractJSON(ctx, filePath, mimeType, modelName, correctivePromptText)
		if err != nil {
			return model.ExtractionPayload{}, err
		}
		fields, parseErr = parseJSONObject(text)
		if parseErr != nil {
			return model.ExtractionPayload{}, parseErr
		}
	}

	fields["_provider"] = client.Name()
	return model.ExtractionPayload(fields), nil
}

// parseJSONObject requires the provider's text to decode as a single JSON
// object (not an array, scalar, or malformed text), per invalid_json_shape.
func parseJSONObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, newError(CodeInvalidJSON, "provider returned empty text", nil)
	}

	var raw any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, newError(CodeInvalidJSON, "provider response is not valid JSON", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, newError(CodeInvalidJSONShape, "provider response is not a JSON object", nil)
	}
	return obj, nil
}
