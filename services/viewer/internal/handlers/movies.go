package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/movie-platform/internal/platform/analytics"
	"github.com/example/movie-platform/internal/platform/api"
	"github.com/example/movie-platform/internal/platform/httpserver"
	"github.com/example/movie-platform/services/viewer/internal/moviehub"
)

var allowedSorts = map[string]bool{"latest": true, "rating": true, "reviews": true}

// ListMovies handles GET /v1/movies?page=N&size=M&sort=latest&genres=a,b.
// Pages are cached; the cache is keyed by the full filter so distinct
// filters never collide.
func ListMovies(hub moviehub.Provider, cache Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		sort := strings.ToLower(strings.TrimSpace(q.Get("sort")))
		if sort != "" && !allowedSorts[sort] {
			api.BadRequest(w, "INVALID_SORT", "sort must be latest, rating or reviews", rid, nil)
			return
		}

		filter := moviehub.MovieFilter{
			Page: parseInt(q.Get("page"), 0, 0, 10000),
			Size: parseInt(q.Get("size"), 20, 1, 100),
			Sort: sort,
		}
		if raw := strings.TrimSpace(q.Get("genres")); raw != "" {
			for _, g := range strings.Split(raw, ",") {
				if g = strings.TrimSpace(g); g != "" {
					filter.Genres = append(filter.Genres, g)
				}
			}
		}

		key := fmt.Sprintf("ListMovies:%d:%d:%s:%s", filter.Page, filter.Size, filter.Sort, strings.Join(filter.Genres, ","))
		if cached, ok := cache.Get(key); ok {
			api.WriteJSON(w, http.StatusOK, cached)
			return
		}

		page, err := hub.FilterMovies(r.Context(), filter)
		if err != nil {
			writeUpstreamError(w, rid, err)
			return
		}

		cache.Set(key, page)
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// GetMovie handles GET /v1/movies/{movie_cd} and records a view event for
// signed-in viewers.
func GetMovie(hub moviehub.Provider, cache Cache, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		movieCd := strings.TrimSpace(chi.URLParam(r, "movie_cd"))
		if movieCd == "" {
			api.BadRequest(w, "MISSING_ID", "movie_cd is required", rid, nil)
			return
		}

		publishView := func() {
			if uid := viewerIDString(r); uid != "" {
				events.Publish(analytics.SubjectMovieViewed, "movie_viewed", uid, map[string]any{
					"movie_cd": movieCd,
				})
			}
		}

		key := "GetMovie:" + movieCd
		if cached, ok := cache.Get(key); ok {
			publishView()
			api.WriteJSON(w, http.StatusOK, cached)
			return
		}

		movie, err := hub.GetMovie(r.Context(), movieCd)
		if err != nil {
			writeUpstreamError(w, rid, err)
			return
		}

		cache.Set(key, movie)
		publishView()
		api.WriteJSON(w, http.StatusOK, movie)
	}
}
