package api

import (
	"context"

	"github.com/vcetai/campuschat/internal/proxy"
)

// systemPrompt frames the upstream LLM as the campus assistant. The RAG
// backend proper does retrieval before prompting; this proxy deployment
// relies on the model's knowledge plus the framing below.
const systemPrompt = `You are the VCET campus assistant. Answer questions about ` +
	`Velammal College of Engineering and Technology: courses, admissions, ` +
	`placements, facilities, fees, and student life. Be concise and factual. ` +
	`If you do not know, say so rather than inventing details.`

// Answerer produces an answer for a campus question. credential is the
// user-supplied API key, empty to use the server default.
type Answerer interface {
	Answer(ctx context.Context, query, credential string) (string, error)
	Model() string
}

// GroqAnswerer answers questions through the Groq proxy client.
type GroqAnswerer struct {
	client *proxy.Client
}

// NewGroqAnswerer wraps a proxy client as an Answerer.
func NewGroqAnswerer(client *proxy.Client) *GroqAnswerer {
	return &GroqAnswerer{client: client}
}

func (a *GroqAnswerer) Answer(ctx context.Context, query, credential string) (string, error) {
	return a.client.Complete(ctx, credential, systemPrompt, query)
}

func (a *GroqAnswerer) Model() string {
	return a.client.Model()
}

// The handler maps upstream failures onto the public error surface without
// depending on the concrete answerer.

func isUpstreamUnauthorized(err error) bool {
	return proxy.IsUnauthorized(err)
}

func isUpstreamRateLimit(err error) bool {
	return proxy.IsRateLimit(err)
}
