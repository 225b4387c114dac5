package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// mistralClient talks to Mistral's bespoke two-step OCR-then-chat API: the
// document is OCR'd into markdown text first, then that text is embedded
// into a regular chat completion prompt. No pack library wraps Mistral's
// /ocr endpoint, so this is hand-rolled net/http, same as the reference
// implementation hand-rolls it with requests.
type mistralClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newMistralClient(apiKey string) *mistralClient {
	return &mistralClient{
		apiKey:     apiKey,
		baseURL:    "https://api.mistral.ai/v1",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *mistralClient) Name() string { return "mistral" }

func (c *mistralClient) headers(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *mistralClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	ocrText, err := c.ocrText(ctx, filePath, mimeType)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"model":           modelName,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt + "\n\nExtract fields from this OCR text:\n" + ocrText},
		},
	}

	payload, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", newError(CodeProviderRequestFailed, "mistral: malformed chat response", err)
	}
	if len(decoded.Choices) == 0 {
		return "", newError(CodeEmptyResponse, "mistral chat returned no choices", nil)
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", newError(CodeEmptyResponse, "mistral chat returned empty content", nil)
	}
	return content, nil
}

func (c *mistralClient) ocrText(ctx context.Context, filePath, mimeType string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", newError(CodeFileNotFound, "read document for OCR", err)
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	docType := "image_url"
	docKey := "image_url"
	if mimeType == "application/pdf" {
		docType = "document_url"
		docKey = "document_url"
	}

	body := map[string]any{
		"model": "mistral-ocr-latest",
		"document": map[string]any{
			"type": docType,
			docKey: dataURI,
		},
	}

	payload, err := c.post(ctx, "/ocr", body)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Pages []struct {
			Markdown string `json:"markdown"`
		} `json:"pages"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", newError(CodeProviderRequestFailed, "mistral: malformed OCR response", err)
	}

	var chunks []string
	for _, page := range decoded.Pages {
		if strings.TrimSpace(page.Markdown) != "" {
			chunks = append(chunks, page.Markdown)
		}
	}
	if len(chunks) == 0 {
		return "", newError(CodeEmptyResponse, "mistral OCR returned no text", nil)
	}
	return strings.Join(chunks, "\n\n"), nil
}

func (c *mistralClient) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, newError(CodeProviderRequestFailed, "mistral: marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, newError(CodeProviderRequestFailed, "mistral: build request", err)
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(CodeProviderRequestFailed, "mistral: request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(CodeProviderRequestFailed, "mistral: read response", err)
	}

	if resp.StatusCode >= 400 {
		snippet := string(respBody)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return nil, newError(CodeProviderRequestFailed, fmt.Sprintf("mistral %s failed with status %d: %s", path, resp.StatusCode, snippet), nil)
	}
	return respBody, nil
}
