package engine

import "context"

// ResumeTokenManager issues and validates the opaque tokens an external
// caller presents to resume a waiting Execution. Tokens are
// single-use: Consume must invalidate a token atomically with reporting it
// valid, so two concurrent Resume calls racing on the same token cannot
// both succeed.
type ResumeTokenManager interface {
	// Issue mints a new token bound to executionID, expiring at
	// deadlineUnixNano (0 means no expiry).
	Issue(ctx context.Context, executionID string, deadlineUnixNano int64) (token string, err error)

	// Consume validates and invalidates token, returning the bound
	// execution id. Returns CodeInvalidResumeToken if unknown or already
	// consumed, CodeResumeTokenExpired if past its deadline.
	Consume(ctx context.Context, token string) (executionID string, err error)

	// Revoke invalidates every outstanding token for executionID without
	// consuming them, used when an execution is cancelled while waiting.
	Revoke(ctx context.Context, executionID string) error
}
