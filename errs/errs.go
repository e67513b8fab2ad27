package errs

import "errors"

var (
	ErrScopeRejected        = errors.New("query is outside the supported domain")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	ErrStaleData            = errors.New("stale data")
	ErrCitationMismatch     = errors.New("citation mismatch")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrCacheCorruption      = errors.New("cache corruption")
	ErrGenerationFailure    = errors.New("generation failure")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrSessionNotFound      = errors.New("session not found")

	// ErrPermanent marks failures that must not be retried.
	ErrPermanent = errors.New("permanent failure")
)

// IsPermanent reports whether err should stop a retry loop.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrRateLimitExceeded)
}
