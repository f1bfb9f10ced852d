package domain

import "errors"

var (
	// ErrEmptyQuery signals an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("empty query")
	// ErrQueryTooLong signals a query exceeding the configured maximum length.
	ErrQueryTooLong = errors.New("query too long")
	// ErrNoChannels signals a request naming no channels.
	ErrNoChannels = errors.New("no channels requested")
	// ErrUnknownChannel signals a channel identifier outside the known enumeration.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrMissingCaller signals a request without caller identity.
	ErrMissingCaller = errors.New("missing caller identity")
	// ErrInvalidCallback signals a malformed callback URL.
	ErrInvalidCallback = errors.New("invalid callback url")

	// ErrSessionNotFound signals a missing or expired session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound signals a missing user record.
	ErrUserNotFound = errors.New("user not found")

	// ErrVectorDimMismatch signals a vector dimension mismatch for an embedding space.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownEmbeddingSpace signals a request for an unconfigured embedding space.
	ErrUnknownEmbeddingSpace = errors.New("unknown embedding space")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrChannelUnavailable signals a single channel's backend failure.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrAllChannelsFailed signals that every requested channel failed.
	ErrAllChannelsFailed = errors.New("all channels failed")
)
