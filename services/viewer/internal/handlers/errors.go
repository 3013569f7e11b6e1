package handlers

import (
	"errors"
	"net/http"

	"github.com/example/movie-platform/internal/platform/api"
	"github.com/example/movie-platform/services/viewer/internal/commenttree"
	"github.com/example/movie-platform/services/viewer/internal/moviehub"
	"github.com/example/movie-platform/services/viewer/internal/threads"
)

// writeStoreError maps a commenttree or registry error onto the HTTP surface.
// Unknown errors become 502: the edge holds no durable state, so anything
// unexpected is an upstream problem as far as the SPA is concerned.
func writeStoreError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, threads.ErrUnknownToken):
		api.Gone(w, "THREAD_CLOSED", "Thread view is closed; open it again", rid)
	case errors.Is(err, commenttree.ErrStoreClosed):
		api.Gone(w, "THREAD_CLOSED", "Thread view is closed; open it again", rid)
	case errors.Is(err, commenttree.ErrValidation):
		api.BadRequest(w, "INVALID_CONTENT", err.Error(), rid, nil)
	case errors.Is(err, commenttree.ErrAuthRequired):
		api.Unauthorized(w, "AUTH_REQUIRED", "Sign in to do that", rid)
	case errors.Is(err, commenttree.ErrNotFound):
		api.NotFound(w, "COMMENT_NOT_FOUND", "Comment not found in this thread", rid)
	case errors.Is(err, commenttree.ErrLikeInFlight):
		api.Conflict(w, "LIKE_IN_FLIGHT", "A like for this comment is still settling", rid, nil)
	case errors.Is(err, commenttree.ErrFetchFailed):
		api.BadGateway(w, "UPSTREAM_FETCH_FAILED", "Could not load the comment thread", rid)
	case errors.Is(err, commenttree.ErrMutationFailed):
		api.BadGateway(w, "UPSTREAM_MUTATION_FAILED", "The comment service rejected the change", rid)
	default:
		api.BadGateway(w, "UPSTREAM_ERROR", "Upstream request failed", rid)
	}
}

// writeUpstreamError maps moviehub client failures for the non-thread routes.
func writeUpstreamError(w http.ResponseWriter, rid string, err error) {
	var apiErr *moviehub.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatus() {
		case http.StatusNotFound:
			api.NotFound(w, "NOT_FOUND", "Resource not found", rid)
			return
		case http.StatusUnauthorized:
			api.Unauthorized(w, "AUTH_REQUIRED", "Sign in to do that", rid)
			return
		}
	}
	api.BadGateway(w, "UPSTREAM_ERROR", "Upstream request failed", rid)
}
