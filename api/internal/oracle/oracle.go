// Package oracle defines the language-model client used for interpretation,
// extraction and verification prompts. Every call site must tolerate an
// unavailable client and degrade to a documented default.
package oracle

import "context"

type Options struct {
	Temperature float32
	// JSON requests strict JSON output from the provider.
	JSON      bool
	MaxTokens int
}

type Client interface {
	Name() string
	// Available reports whether the client is configured with credentials.
	Available() bool
	Complete(ctx context.Context, system, user string, opts Options) (string, error)
}

// Pick returns the first available client, or nil when none is configured.
func Pick(clients ...Client) Client {
	for _, c := range clients {
		if c != nil && c.Available() {
			return c
		}
	}
	return nil
}
