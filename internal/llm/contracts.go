package llm

import "context"

// ChatClient is the narrow model contract the pipeline depends on. The core
// treats every failure as "no response"; the only provider detail that leaks
// through is the rate-limit condition (common.ErrRateLimited), which callers
// may retry.
type ChatClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}
