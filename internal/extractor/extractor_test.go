package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVisionClient plays back a scripted sequence of (text, error) results,
// one per call to ExtractJSON, and records how many times it was called.
type fakeVisionClient struct {
	name    string
	scripts []fakeResult
	calls   int
}

type fakeResult struct {
	text string
	err  error
}

func (f *fakeVisionClient) Name() string { return f.name }

func (f *fakeVisionClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.scripts) {
		i = len(f.scripts) - 1
	}
	result := f.scripts[i]
	return result.text, result.err
}

func tempDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.png")
	require.NoError(t, os.WriteFile(path, []byte("fake-image-bytes"), 0o600))
	return path
}

func TestExtractWithClient_CorrectiveRetryOnInvalidJSON(t *testing.T) {
	client := &fakeVisionClient{
		name: "mistral",
		scripts: []fakeResult{
			{text: "not json"},
			{text: `{"vendor":"RYANS","total":8300}`},
		},
	}

	payload, err := extractWithClient(context.Background(), client, tempDocument(t), "image/png", "pixtral-large-latest")

	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, "RYANS", payload["vendor"])
	assert.Equal(t, "mistral", payload.Provider())
}

func TestExtractWithClient_SucceedsWithoutRetry(t *testing.T) {
	client := &fakeVisionClient{
		name:    "groq",
		scripts: []fakeResult{{text: `{"vendor":"ACME"}`}},
	}

	payload, err := extractWithClient(context.Background(), client, tempDocument(t), "image/png", "model")

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "groq", payload.Provider())
}

func TestExtractWithClient_FailsAfterSecondInvalidJSON(t *testing.T) {
	client := &fakeVisionClient{
		name: "mistral",
		scripts: []fakeResult{
			{text: "still not json"},
			{text: "also not json"},
		},
	}

	_, err := extractWithClient(context.Background(), client, tempDocument(t), "image/png", "model")

	require.Error(t, err)
	assert.Equal(t, 2, client.calls)
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, CodeInvalidJSON, extractErr.Code)
}

func TestExtractWithClient_RejectsJSONArray(t *testing.T) {
	client := &fakeVisionClient{
		name: "mistral",
		scripts: []fakeResult{
			{text: `[1,2,3]`},
			{text: `[1,2,3]`},
		},
	}

	_, err := extractWithClient(context.Background(), client, tempDocument(t), "image/png", "model")

	require.Error(t, err)
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, CodeInvalidJSONShape, extractErr.Code)
}

func TestExtractWithClient_NoRetryOnProviderError(t *testing.T) {
	client := &fakeVisionClient{
		name: "mistral",
		scripts: []fakeResult{
			{err: newError(CodeProviderRequestFailed, "rate limited", nil)},
		},
	}

	_, err := extractWithClient(context.Background(), client, tempDocument(t), "image/png", "model")

	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestMimeForPath_RejectsUnsupportedExtension(t *testing.T) {
	_, err := mimeForPath("document.txt")
	require.Error(t, err)
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, CodeUnsupportedType, extractErr.Code)
}

func TestMultiProviderClient_FallsBackToSecondProvider(t *testing.T) {
	first := &fakeVisionClient{name: "mistral", scripts: []fakeResult{{err: newError(CodeProviderRequestFailed, "down", nil)}}}
	second := &fakeVisionClient{name: "groq", scripts: []fakeResult{{text: `{"vendor":"ACME"}`}}}

	multi := newMultiProviderClient([]namedProvider{
		{name: "mistral", client: first, model: "m1"},
		{name: "groq", client: second, model: "m2"},
	})

	text, err := multi.ExtractJSON(context.Background(), tempDocument(t), "image/png", "", "prompt")

	require.NoError(t, err)
	assert.JSONEq(t, `{"vendor":"ACME"}`, text)
	assert.Equal(t, "groq", multi.Name())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestMultiProviderClient_AllProvidersFailReportsAggregateError(t *testing.T) {
	first := &fakeVisionClient{name: "mistral", scripts: []fakeResult{{err: newError(CodeProviderRequestFailed, "down", nil)}}}
	second := &fakeVisionClient{name: "groq", scripts: []fakeResult{{err: newError(CodeProviderRequestFailed, "also down", nil)}}}

	multi := newMultiProviderClient([]namedProvider{
		{name: "mistral", client: first},
		{name: "groq", client: second},
	})

	_, err := multi.ExtractJSON(context.Background(), tempDocument(t), "image/png", "model", "prompt")

	require.Error(t, err)
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, CodeAllProvidersFailed, extractErr.Code)
	assert.Equal(t, "auto", multi.Name())
}
