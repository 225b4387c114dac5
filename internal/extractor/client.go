// Package extractor turns a document file into a raw, loosely-typed JSON
// payload by calling out to one or more vision-capable LLM providers, with
// sequential fallback and a single corrective retry on malformed JSON.
package extractor

import "context"

// VisionClient calls one provider's vision-capable chat completion API and
// returns the raw text response. Implementations do not parse JSON; that
// is extract's job.
type VisionClient interface {
	// Name identifies the provider for error aggregation and the
	// _provider field attached to successful payloads.
	Name() string
	ExtractJSON(ctx context.Context, filePath, mimeType, modelName, prompt string) (string, error)
}

// ProviderConfig supplies per-provider credentials and model overrides.
// Resolution order for API keys follows the reference implementation's
// environment variable names.
type ProviderConfig struct {
	MistralAPIKey    string
	MistralModel     string
	OpenRouterAPIKey string
	OpenRouterModel  string
	GroqAPIKey       string
	GroqModel        string
	OpenAIAPIKey     string
	OpenAIModel      string
	GeminiAPIKey     string
	GeminiModel      string
	AnthropicAPIKey  string
	AnthropicModel   string
	BedrockModelID   string
	BedrockRegion    string

	// ProviderOrder is the fallback chain used when no explicit provider
	// is requested. Defaults to "mistral,openrouter,groq" like the
	// reference implementation's EXTRACTION_PROVIDER_ORDER.
	ProviderOrder []string
}

func (c ProviderConfig) providerOrder() []string {
	if len(c.ProviderOrder) > 0 {
		return c.ProviderOrder
	}
	return []string{"mistral", "openrouter", "groq"}
}

func defaultModel(provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch provider {
	case "mistral":
		return "pixtral-large-latest"
	case "openrouter":
		return "mistralai/pixtral-12b"
	case "groq":
		return "meta-llama/llama-4-scout-17b-16e-instruct"
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-1.5-pro"
	case "anthropic":
		return "claude-3-5-sonnet-latest"
	case "bedrock":
		return "anthropic.claude-3-sonnet-20240229-v1:0"
	default:
		return "gpt-4o-mini"
	}
}

// clientForProvider builds the client for a single named provider, or nil
// if its credentials are absent (the caller decides whether that's fatal).
func clientForProvider(provider string, cfg ProviderConfig) (VisionClient, string, error) {
	switch provider {
	case "mistral":
		if cfg.MistralAPIKey == "" {
			return nil, "", nil
		}
		return newResilientClient(newMistralClient(cfg.MistralAPIKey), 1, 2), defaultModel("mistral", cfg.MistralModel), nil
	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return nil, "", nil
		}
		return newResilientClient(newOpenAICompatibleClient("OpenRouter", cfg.OpenRouterAPIKey, "https://openrouter.ai/api/v1"), 1, 2), defaultModel("openrouter", cfg.OpenRouterModel), nil
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil, "", nil
		}
		return newResilientClient(newOpenAICompatibleClient("Groq", cfg.GroqAPIKey, "https://api.groq.com/openai/v1"), 2, 4), defaultModel("groq", cfg.GroqModel), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, "", nil
		}
		return newResilientClient(newOpenAICompatibleClient("OpenAI", cfg.OpenAIAPIKey, ""), 1, 2), defaultModel("openai", cfg.OpenAIModel), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, "", nil
		}
		return newResilientClient(newGeminiClient(cfg.GeminiAPIKey), 1, 2), defaultModel("gemini", cfg.GeminiModel), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, "", nil
		}
		return newResilientClient(newAnthropicClient(cfg.AnthropicAPIKey), 1, 2), defaultModel("anthropic", cfg.AnthropicModel), nil
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, "", nil
		}
		client, err := newBedrockClient(cfg.BedrockRegion)
		if err != nil {
			return nil, "", err
		}
		return newResilientClient(client, 1, 2), cfg.BedrockModelID, nil
	default:
		return nil, "", newError(CodeUnsupportedProvider, "unsupported provider: "+provider, nil)
	}
}

// buildClient resolves a VisionClient for providerHint. "auto", "fallback",
// and "multi" all build a MultiProviderClient from cfg.providerOrder(),
// skipping providers without credentials.
func buildClient(providerHint string, cfg ProviderConfig) (VisionClient, string, error) {
	switch providerHint {
	case "", "auto", "fallback", "multi":
		var providers []namedProvider
		for _, name := range cfg.providerOrder() {
			client, model, err := clientForProvider(name, cfg)
			if err != nil {
				return nil, "", err
			}
			if client == nil {
				continue
			}
			providers = append(providers, namedProvider{name: name, client: client, model: model})
		}
		if len(providers) == 0 {
			return nil, "", newError(CodeMissingAPIKey, "no provider API key found for configured fallback chain", nil)
		}
		return newMultiProviderClient(providers), "auto", nil
	default:
		client, model, err := clientForProvider(providerHint, cfg)
		if err != nil {
			return nil, "", err
		}
		if client == nil {
			return nil, "", newError(CodeMissingAPIKey, "missing API key for provider: "+providerHint, nil)
		}
		return client, model, nil
	}
}
