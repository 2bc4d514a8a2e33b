package provider

import (
	"errors"
	"fmt"
)

var (
	ErrAuthFailed       = errors.New("authentication failed")
	ErrNotFound         = errors.New("pull request not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
	ErrUnknownProvider  = errors.New("unknown provider")
)

// UserError is an error rendered for a person at a terminal.
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// userHints maps adapter sentinels to CLI guidance, checked in order.
var userHints = []struct {
	target  error
	message string
	hint    string
}{
	{
		target:  ErrUnknownProvider,
		message: "Unknown provider",
		hint:    "Use --provider github.",
	},
	{
		target:  ErrAuthFailed,
		message: "Provider rejected the credentials",
		hint:    "Set GITHUB_TOKEN to a token that can read pull requests and write reviews.",
	},
	{
		target:  ErrNotFound,
		message: "Pull request not found",
		hint:    "Check owner/repo and --number, and that the token has access to the repository.",
	},
	{
		target:  ErrRateLimited,
		message: "Provider rate limit reached",
		hint:    "Wait for the limit to reset, or lower SIFT_MAX_CONCURRENCY on the workers.",
	},
	{
		target:  ErrInvalidSignature,
		message: "Webhook signature did not match",
		hint:    "GITHUB_WEBHOOK_SECRET must equal the secret configured on the webhook.",
	},
}

// WrapError converts provider sentinels into a UserError with a hint.
// Other errors are returned unchanged.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return err
	}
	for _, h := range userHints {
		if errors.Is(err, h.target) {
			return &UserError{Message: h.message, Hint: h.hint, Err: err}
		}
	}
	return err
}
