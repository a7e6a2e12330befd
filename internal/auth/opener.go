package auth

import (
	"context"

	"channel-analytics/internal/domain"
)

// Opener shows the handshake entry point in a secondary context (popup
// window, system browser) without navigating the primary one.
type Opener interface {
	Open(ctx context.Context, prompt domain.LoginPrompt) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, prompt domain.LoginPrompt) error

func (f OpenerFunc) Open(ctx context.Context, prompt domain.LoginPrompt) error {
	return f(ctx, prompt)
}
