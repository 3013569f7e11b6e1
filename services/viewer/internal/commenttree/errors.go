package commenttree

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxContentLength mirrors the upstream bound so obviously oversized
// submissions never leave the edge.
const MaxContentLength = 10000

// Error kinds surfaced by the Store. Callers distinguish them with errors.Is.
var (
	// ErrFetchFailed: a thread load failed; any previously loaded forest
	// is retained and the load may be retried.
	ErrFetchFailed = errors.New("comment thread fetch failed")

	// ErrValidation: a pre-flight content check failed; no request was issued.
	ErrValidation = errors.New("invalid comment content")

	// ErrAuthRequired: the action needs a signed-in viewer, either locally
	// (anonymous store) or because the upstream rejected the session.
	ErrAuthRequired = errors.New("sign-in required")

	// ErrMutationFailed: the upstream rejected or failed a mutation; any
	// optimistic change was rolled back, pending state cleared.
	ErrMutationFailed = errors.New("comment mutation failed")

	// ErrLikeInFlight: a like toggle for the same comment has not settled yet.
	ErrLikeInFlight = errors.New("like request already in flight")

	// ErrStoreClosed: the owning view closed; the response was discarded.
	ErrStoreClosed = errors.New("thread view closed")

	// ErrNotFound: the referenced comment is not in the forest.
	ErrNotFound = errors.New("comment not found")
)

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	return nil
}

func fetchErr(err error) error {
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}

// mutationErr maps a transport failure onto a store error kind. An upstream
// 401 means the session is gone, not that the mutation itself was bad.
func mutationErr(err error) error {
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	return fmt.Errorf("%w: %v", ErrMutationFailed, err)
}
