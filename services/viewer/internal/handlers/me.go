package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/example/movie-platform/internal/platform/api"
	"github.com/example/movie-platform/internal/platform/auth"
	"github.com/example/movie-platform/internal/platform/httpserver"
	"github.com/example/movie-platform/services/viewer/internal/moviehub"
)

// GetMe handles GET /v1/me: the signed-in viewer's profile.
func GetMe(hub moviehub.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		viewer, ok := auth.ViewerFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_REQUIRED", "Sign in to do that", rid)
			return
		}

		info, err := hub.GetUserInfo(r.Context(), viewer.ID)
		if err != nil {
			writeUpstreamError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, info)
	}
}

// ListReservations handles GET /v1/me/reservations with client-style
// filters applied at the edge: ?search= matches movie titles, ?period=
// thisMonth|lastMonth restricts by screening date, ?status=
// completed|cancelled, ?sort=oldest flips the default latest-first order.
func ListReservations(hub moviehub.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		viewer, ok := auth.ViewerFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "AUTH_REQUIRED", "Sign in to do that", rid)
			return
		}

		all, err := hub.ListReservations(r.Context(), viewer.ID)
		if err != nil {
			writeUpstreamError(w, rid, err)
			return
		}

		q := r.URL.Query()
		filtered := filterReservations(all, reservationFilter{
			Search: strings.TrimSpace(q.Get("search")),
			Period: strings.TrimSpace(q.Get("period")),
			Status: strings.ToUpper(strings.TrimSpace(q.Get("status"))),
			Oldest: strings.EqualFold(strings.TrimSpace(q.Get("sort")), "oldest"),
		}, time.Now())

		api.WriteJSON(w, http.StatusOK, map[string]any{
			"reservations": filtered,
			"total":        len(filtered),
		})
	}
}

type reservationFilter struct {
	Search string
	Period string // thisMonth | lastMonth | "" for all
	Status string // COMPLETED | CANCELLED | "" for all
	Oldest bool
}

func filterReservations(all []moviehub.ReservationDTO, f reservationFilter, now time.Time) []moviehub.ReservationDTO {
	out := make([]moviehub.ReservationDTO, 0, len(all))

	var periodStart, periodEnd time.Time
	switch f.Period {
	case "thisMonth":
		periodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		periodEnd = periodStart.AddDate(0, 1, 0)
	case "lastMonth":
		periodEnd = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		periodStart = periodEnd.AddDate(0, -1, 0)
	}

	search := strings.ToLower(f.Search)
	for _, res := range all {
		if search != "" && !strings.Contains(strings.ToLower(res.MovieTitle), search) {
			continue
		}
		if f.Status != "" && res.Status != f.Status {
			continue
		}
		if !periodStart.IsZero() {
			if res.ScreeningAt.Before(periodStart) || !res.ScreeningAt.Before(periodEnd) {
				continue
			}
		}
		out = append(out, res)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if f.Oldest {
			return out[i].ScreeningAt.Before(out[j].ScreeningAt)
		}
		return out[j].ScreeningAt.Before(out[i].ScreeningAt)
	})
	return out
}
