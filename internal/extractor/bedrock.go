package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockClient invokes an Anthropic-family model hosted on AWS Bedrock via
// InvokeModel, using the Anthropic "messages" request/response shape
// Bedrock expects for Claude models. Grounded on jordigilh-kubernaut's
// go.mod dependency on bedrockruntime; the pack has no non-test call site,
// so the request/response envelope follows Bedrock's documented contract.
type bedrockClient struct {
	client *bedrockruntime.Client
}

func newBedrockClient(region string) (*bedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, newError(CodeProviderRequestFailed, "bedrock: load AWS config", err)
	}
	return &bedrockClient{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (c *bedrockClient) Name() string { return "bedrock" }

type bedrockImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type bedrockContentBlock struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Source *bedrockImageSource `json:"source,omitempty"`
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *bedrockClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", newError(CodeFileNotFound, "read document", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	reqBody := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{
				Role: "user",
				Content: []bedrockContentBlock{
					{Type: "image", Source: &bedrockImageSource{Type: "base64", MediaType: mimeType, Data: encoded}},
					{Type: "text", Text: prompt},
				},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", newError(CodeProviderRequestFailed, "bedrock: marshal request", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelName),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return "", newError(CodeProviderRequestFailed, "bedrock: invoke model", err)
	}

	var decoded bedrockResponse
	if err := json.NewDecoder(bytes.NewReader(out.Body)).Decode(&decoded); err != nil {
		return "", newError(CodeProviderRequestFailed, "bedrock: malformed response", err)
	}

	var builder strings.Builder
	for _, block := range decoded.Content {
		builder.WriteString(block.Text)
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", newError(CodeEmptyResponse, "bedrock returned empty response", nil)
	}
	return text, nil
}
