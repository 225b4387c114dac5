package extractor

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient wraps anthropic-sdk-go's Messages API for image/PDF
// understanding. The pack declares this dependency (jordigilh-kubernaut's
// go.mod) but exercises it only from test doubles, so this call is built
// from the SDK's documented public shape rather than a pack source file.
type anthropicClient struct {
	apiKey string
}

func newAnthropicClient(apiKey string) *anthropicClient {
	return &anthropicClient{apiKey: apiKey}
}

func (c *anthropicClient) Name() string { return "anthropic" }

func (c *anthropicClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", newError(CodeFileNotFound, "read document", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	var imageBlock anthropic.ContentBlockParamUnion
	if mimeType == "application/pdf" {
		imageBlock = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encoded})
	} else {
		imageBlock = anthropic.NewImageBlockBase64(mimeType, encoded)
	}

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(imageBlock, anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", newError(CodeProviderRequestFailed, "anthropic: messages.new failed", err)
	}

	var builder strings.Builder
	for _, block := range message.Content {
		if text := block.Text; text != "" {
			builder.WriteString(text)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", newError(CodeEmptyResponse, "anthropic returned empty response", nil)
	}
	return text, nil
}
