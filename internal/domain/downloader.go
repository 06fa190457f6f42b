package domain

import "context"

// Strategy is one method of resolving a post URL to a local video file
type Strategy interface {
	// Name returns the strategy name used in config chains and logs
	Name() string

	// Attempt downloads the video for req into dest.
	// On failure it must not leave a partial file at dest.
	Attempt(ctx context.Context, req DownloadRequest, dest string) (*Media, error)
}

// StrategyFunc adapts a function to the Strategy interface
type StrategyFunc struct {
	ID string
	Fn func(ctx context.Context, req DownloadRequest, dest string) (*Media, error)
}

// Name returns the strategy name
func (s StrategyFunc) Name() string { return s.ID }

// Attempt calls the wrapped function
func (s StrategyFunc) Attempt(ctx context.Context, req DownloadRequest, dest string) (*Media, error) {
	return s.Fn(ctx, req, dest)
}

// Consumer receives a downloaded artifact. The file is removed when it returns.
type Consumer func(artifact *Artifact) error
