package orchestrator

import (
	"errors"
	"strings"
)

// ErrPreconditionFailed is returned when an operation is attempted against a
// token in the wrong state, by the wrong owner, or while an advisory sell
// lock is already held.
var ErrPreconditionFailed = errors.New("operation precondition failed")

// permanentChainErrors are substrings of worker-reported failures that
// cannot succeed on resubmission. Matching is case-insensitive.
var permanentChainErrors = []string{
	"already initialized",
	"custom program error: 0x0",
	"token creation failed",
	"unable to fetch curve data",
}

// ClassifyChainError reports whether a worker-reported failure message is
// permanent. Anything unrecognized is treated as transient and left to the
// attempt-count policy.
func ClassifyChainError(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range permanentChainErrors {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
