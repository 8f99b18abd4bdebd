// Package analyzer defines the external analysis provider port.
package analyzer

import "context"

// Request carries the role-specific system prompt and the user prompt built
// from document content.
type Request struct {
	System string
	Prompt string
}

// Analyzer is the port interface for the external analysis provider. The
// returned text is expected to contain a JSON object, possibly wrapped in
// markdown code fences; callers must tolerate malformed responses.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}
