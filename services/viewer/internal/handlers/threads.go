package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/movie-platform/internal/platform/analytics"
	"github.com/example/movie-platform/internal/platform/api"
	"github.com/example/movie-platform/internal/platform/auth"
	"github.com/example/movie-platform/internal/platform/httpserver"
	"github.com/example/movie-platform/services/viewer/internal/commenttree"
	"github.com/example/movie-platform/services/viewer/internal/threads"
)

type openThreadReq struct {
	ReviewID int64 `json:"review_id"`
}

type threadResponse struct {
	Token    string              `json:"token,omitempty"`
	ReviewID int64               `json:"review_id"`
	Total    int                 `json:"total"`
	Comments []*commenttree.Node `json:"comments"`
}

type replyReq struct {
	ParentID *int64 `json:"parent_id,omitempty"`
	Content  string `json:"content"`
}

type editReq struct {
	Content string `json:"content"`
}

type likeReq struct {
	CurrentlyLiked bool `json:"currently_liked"`
}

func storeViewer(r *http.Request) *commenttree.Viewer {
	v, ok := auth.ViewerFromContext(r.Context())
	if !ok {
		return nil
	}
	return &commenttree.Viewer{ID: v.ID, Nickname: v.Nickname, AvatarURL: v.AvatarURL}
}

func viewerIDString(r *http.Request) string {
	if v, ok := auth.ViewerFromContext(r.Context()); ok {
		return strconv.FormatInt(v.ID, 10)
	}
	return ""
}

// OpenThread handles POST /v1/threads. It fetches the full comment tree for
// the review and returns a session token the SPA uses for every follow-up
// action until the view closes.
func OpenThread(reg *threads.Registry, tr commenttree.Transport, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req openThreadReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.ReviewID <= 0 {
			api.BadRequest(w, "MISSING_ID", "review_id is required", rid, nil)
			return
		}

		store := commenttree.New(tr, req.ReviewID, storeViewer(r))
		if err := store.Load(r.Context()); err != nil {
			writeStoreError(w, rid, err)
			return
		}

		token := reg.Open(store)
		events.Publish(analytics.SubjectThreadOpened, "thread_opened", viewerIDString(r), map[string]any{
			"review_id": req.ReviewID,
			"comments":  store.Size(),
		})

		api.WriteJSON(w, http.StatusCreated, threadResponse{
			Token:    token,
			ReviewID: req.ReviewID,
			Total:    store.Size(),
			Comments: store.Snapshot(),
		})
	}
}

// GetThread handles GET /v1/threads/{token}: the current snapshot, with
// moderation masking and pending flags applied.
func GetThread(reg *threads.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, threadResponse{
			ReviewID: store.ReviewID(),
			Total:    store.Size(),
			Comments: store.Snapshot(),
		})
	}
}

// RefreshThread handles POST /v1/threads/{token}/refresh: re-fetches the tree
// from upstream. On failure the previous snapshot stays serveable.
func RefreshThread(reg *threads.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		if err := store.Load(r.Context()); err != nil {
			writeStoreError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, threadResponse{
			ReviewID: store.ReviewID(),
			Total:    store.Size(),
			Comments: store.Snapshot(),
		})
	}
}

// CloseThread handles DELETE /v1/threads/{token}. After this the token is
// gone and responses of requests still in flight are discarded.
func CloseThread(reg *threads.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		if err := reg.Close(chi.URLParam(r, "token")); err != nil {
			writeStoreError(w, rid, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateReply handles POST /v1/threads/{token}/comments. parent_id null
// creates a top-level comment.
func CreateReply(reg *threads.Registry, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}

		var req replyReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		node, err := store.AddReply(r.Context(), req.ParentID, req.Content)
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}

		events.Publish(analytics.SubjectCommentCreated, "comment_created", viewerIDString(r), map[string]any{
			"review_id":  store.ReviewID(),
			"comment_id": node.ID,
			"is_reply":   req.ParentID != nil,
		})
		api.WriteJSON(w, http.StatusCreated, node)
	}
}

func commentIDParam(w http.ResponseWriter, r *http.Request, rid string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "comment_id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		api.BadRequest(w, "MISSING_ID", "comment_id must be a positive integer", rid, nil)
		return 0, false
	}
	return id, true
}

// EditComment handles PUT /v1/threads/{token}/comments/{comment_id}.
func EditComment(reg *threads.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		commentID, ok := commentIDParam(w, r, rid)
		if !ok {
			return
		}

		var req editReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		if err := store.EditContent(r.Context(), commentID, req.Content); err != nil {
			writeStoreError(w, rid, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteComment handles DELETE /v1/threads/{token}/comments/{comment_id}.
// The whole reply subtree goes with it once the upstream confirms.
func DeleteComment(reg *threads.Registry, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		commentID, ok := commentIDParam(w, r, rid)
		if !ok {
			return
		}

		if err := store.Delete(r.Context(), commentID); err != nil {
			writeStoreError(w, rid, err)
			return
		}

		events.Publish(analytics.SubjectCommentDeleted, "comment_deleted", viewerIDString(r), map[string]any{
			"review_id":  store.ReviewID(),
			"comment_id": commentID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// ToggleLike handles POST /v1/threads/{token}/comments/{comment_id}/like.
// The body carries the like state the client rendered so the toggle
// direction is unambiguous.
func ToggleLike(reg *threads.Registry, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		commentID, ok := commentIDParam(w, r, rid)
		if !ok {
			return
		}

		var req likeReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		if err := store.ToggleLike(r.Context(), commentID, req.CurrentlyLiked); err != nil {
			writeStoreError(w, rid, err)
			return
		}

		events.Publish(analytics.SubjectCommentLiked, "comment_like_toggled", viewerIDString(r), map[string]any{
			"review_id":  store.ReviewID(),
			"comment_id": commentID,
			"liked":      !req.CurrentlyLiked,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// ToggleReveal handles POST /v1/threads/{token}/comments/{comment_id}/reveal.
// It flips the session-local reveal of a moderation-blocked comment.
func ToggleReveal(reg *threads.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		store, err := reg.Get(chi.URLParam(r, "token"))
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		commentID, ok := commentIDParam(w, r, rid)
		if !ok {
			return
		}

		revealed, err := store.ToggleReveal(commentID)
		if err != nil {
			writeStoreError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"revealed": revealed})
	}
}
