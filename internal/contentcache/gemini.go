package contentcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiBackend implements Backend on the Gemini cached-content API.
type GeminiBackend struct {
	client *genai.Client
}

// NewGeminiBackend creates a backend client for the Gemini API.
func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

// CreateCache stores content as Gemini cached content and returns its
// resource name.
func (g *GeminiBackend) CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error) {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	cached, err := g.client.Caches.Create(ctx, model, &genai.CreateCachedContentConfig{
		Contents: []*genai.Content{
			genai.NewContentFromText(content, genai.RoleUser),
		},
		TTL: ttl,
	})
	if err != nil {
		if isCacheRejection(err) {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return "", fmt.Errorf("create cached content: %w", err)
	}
	return cached.Name, nil
}

// DeleteCache removes the cached content resource.
func (g *GeminiBackend) DeleteCache(ctx context.Context, handle string) error {
	_, err := g.client.Caches.Delete(ctx, handle, nil)
	if err != nil {
		return fmt.Errorf("delete cached content: %w", err)
	}
	return nil
}

// isCacheRejection classifies provider refusals that are expected in normal
// operation: content below the model's cache minimum, or a model that does
// not support caching.
func isCacheRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "minimum token") ||
		strings.Contains(msg, "too small") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "invalid_argument")
}
