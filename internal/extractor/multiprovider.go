package extractor

import (
	"context"
	"strings"
	"sync"
)

type namedProvider struct {
	name   string
	client VisionClient
	model  string
}

// multiProviderClient walks an ordered provider list, giving each one call;
// it stops at the first success and aggregates every failure's message.
// Name() reports whichever provider last succeeded, which is what the
// extractor attaches as the payload's _provider field.
type multiProviderClient struct {
	providers []namedProvider

	mu            sync.Mutex
	lastSucceeded string
}

func newMultiProviderClient(providers []namedProvider) *multiProviderClient {
	return &multiProviderClient{providers: providers}
}

func (m *multiProviderClient) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSucceeded == "" {
		return "auto"
	}
	return m.lastSucceeded
}

func (m *multiProviderClient) ExtractJSON(ctx context.Context, filePath, mimeType, modelHint, prompt string) (string, error) {
	var failures []string
	for _, p := range m.providers {
		model := p.model
		if model == "" {
			model = modelHint
		}
		text, err := p.client.ExtractJSON(ctx, filePath, mimeType, model, prompt)
		if err == nil {
			m.mu.Lock()
			m.lastSucceeded = p.name
			m.mu.Unlock()
			return text, nil
		}
		failures = append(failures, p.name+": "+err.Error())
	}
	return "", newError(CodeAllProvidersFailed, "all configured providers failed: "+strings.Join(failures, "; "), nil)
}
