package extractor

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// openAICompatibleClient covers any provider that speaks the OpenAI chat
// completions wire format: OpenAI itself, and OpenAI-compatible gateways
// like OpenRouter and Groq via WithBaseURL. Grounded on jordigilh-kubernaut's
// go.mod dependency on tmc/langchaingo; the pack has no non-test call site
// for this SDK, so the llms.Model construction follows langchaingo's
// documented WithImages multi-content message shape.
type openAICompatibleClient struct {
	providerName string
	apiKey       string
	baseURL      string
}

func newOpenAICompatibleClient(providerName, apiKey, baseURL string) *openAICompatibleClient {
	return &openAICompatibleClient{providerName: providerName, apiKey: apiKey, baseURL: baseURL}
}

func (c *openAICompatibleClient) Name() string { return c.providerName }

func (c *openAICompatibleClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	opts := []openai.Option{
		openai.WithToken(c.apiKey),
		openai.WithModel(modelName),
	}
	if c.baseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.baseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return "", newError(CodeProviderRequestFailed, c.providerName+": build client", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", newError(CodeFileNotFound, "read document", err)
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.ImageURLPart(dataURI),
			},
		},
	}

	resp, err := model.GenerateContent(ctx, messages)
	if err != nil {
		return "", newError(CodeProviderRequestFailed, c.providerName+": generate content failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(CodeEmptyResponse, c.providerName+" returned no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", newError(CodeEmptyResponse, c.providerName+" returned empty content", nil)
	}
	return text, nil
}
