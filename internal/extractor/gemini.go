package extractor

import (
	"context"
	"os"
	"strings"

	"google.golang.org/genai"
)

// geminiClient wraps google.golang.org/genai's generative content API for
// image+PDF understanding. The client construction mirrors the pack's own
// genai usage (NewClient with an APIKey-only ClientConfig); the multimodal
// GenerateContent call itself is built from the SDK's documented shape since
// the pack only exercises genai for text embeddings, not vision chat.
type geminiClient struct {
	apiKey string
}

func newGeminiClient(apiKey string) *geminiClient {
	return &geminiClient{apiKey: apiKey}
}

func (c *geminiClient) Name() string { return "gemini" }

func (c *geminiClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return "", newError(CodeProviderRequestFailed, "gemini: create client", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", newError(CodeFileNotFound, "read document", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(systemPrompt + "\n" + prompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	result, err := client.Models.GenerateContent(ctx, modelName, contents, nil)
	if err != nil {
		return "", newError(CodeProviderRequestFailed, "gemini: generate content", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", newError(CodeEmptyResponse, "gemini returned empty response", nil)
	}
	return text, nil
}
