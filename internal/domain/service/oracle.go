package service

import "context"

// TextOracle generates text for a prompt. Output may have no parseable
// structure; callers must fall back accordingly.
type TextOracle interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}
