package moviehub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ─── Movies ──────────────────────────────────────────────────────────────────

// MovieDTO is one movie in a browse page or detail response. MovieCd is the
// KOBIS movie code the whole platform keys movies by.
type MovieDTO struct {
	MovieCd       string   `json:"movieCd"`
	Title         string   `json:"title"`
	TitleEn       string   `json:"titleEn,omitempty"`
	PosterURL     string   `json:"posterUrl,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Director      string   `json:"director,omitempty"`
	Actors        []string `json:"actors,omitempty"`
	OpenDate      string   `json:"openDate,omitempty"`
	RunningTime   int      `json:"runningTime,omitempty"`
	WatchGrade    string   `json:"watchGrade,omitempty"`
	AverageRating float64  `json:"averageRating"`
	ReviewCount   int64    `json:"reviewCount"`
	Overview      string   `json:"overview,omitempty"`
}

// MoviePage is one page of filtered browse results.
type MoviePage struct {
	Content       []MovieDTO `json:"content"`
	Page          int        `json:"page"`
	Size          int        `json:"size"`
	TotalElements int64      `json:"totalElements"`
	TotalPages    int        `json:"totalPages"`
}

// MovieFilter narrows and orders the browse listing. Zero values mean
// upstream defaults (page 0, size 20, latest first, all genres).
type MovieFilter struct {
	Page   int
	Size   int
	Sort   string // latest | rating | reviews
	Genres []string
}

type moviePageEnvelope struct {
	Success bool      `json:"success"`
	Data    MoviePage `json:"data"`
	Message string    `json:"message,omitempty"`
}

type movieDetailEnvelope struct {
	Success bool     `json:"success"`
	Data    MovieDTO `json:"data"`
	Message string   `json:"message,omitempty"`
}

// FilterMovies returns one page of the browse listing.
func (c *Client) FilterMovies(ctx context.Context, f MovieFilter) (*MoviePage, error) {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Size > 0 {
		q.Set("size", strconv.Itoa(f.Size))
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if len(f.Genres) > 0 {
		q.Set("genres", strings.Join(f.Genres, ","))
	}
	var env moviePageEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/api/movies/filter", q, nil, &env); err != nil {
		return nil, err
	}
	if err := envelopeErr("filter movies", env.Success, env.Message); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetMovie returns the detail record for one movie code.
func (c *Client) GetMovie(ctx context.Context, movieCd string) (*MovieDTO, error) {
	var env movieDetailEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/api/movies/"+url.PathEscape(movieCd), nil, nil, &env); err != nil {
		return nil, err
	}
	if err := envelopeErr("get movie", env.Success, env.Message); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// ─── Users and reservations ──────────────────────────────────────────────────

type UserInfoDTO struct {
	ID              int64  `json:"id"`
	Nickname        string `json:"nickname"`
	Email           string `json:"email,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	JoinedAt        string `json:"joinedAt,omitempty"`
}

// ReservationDTO is one ticket reservation of the viewer.
type ReservationDTO struct {
	ID           int64     `json:"id"`
	MovieCd      string    `json:"movieCd"`
	MovieTitle   string    `json:"movieTitle"`
	PosterURL    string    `json:"posterUrl,omitempty"`
	TheaterName  string    `json:"theaterName"`
	ScreenName   string    `json:"screenName,omitempty"`
	SeatLabels   []string  `json:"seatLabels,omitempty"`
	Status       string    `json:"status"` // COMPLETED | CANCELLED
	ScreeningAt  time.Time `json:"screeningAt"`
	ReservedAt   time.Time `json:"reservedAt"`
	TotalPriceWn int64     `json:"totalPrice"`
}

type userInfoEnvelope struct {
	Success bool        `json:"success"`
	Data    UserInfoDTO `json:"data"`
	Message string      `json:"message,omitempty"`
}

type reservationListEnvelope struct {
	Success bool             `json:"success"`
	Data    []ReservationDTO `json:"data"`
	Message string           `json:"message,omitempty"`
}

func (c *Client) GetUserInfo(ctx context.Context, userID int64) (*UserInfoDTO, error) {
	var env userInfoEnvelope
	path := "/api/users/" + strconv.FormatInt(userID, 10) + "/info"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &env); err != nil {
		return nil, err
	}
	if err := envelopeErr("get user info", env.Success, env.Message); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) ListReservations(ctx context.Context, userID int64) ([]ReservationDTO, error) {
	var env reservationListEnvelope
	path := "/api/users/" + strconv.FormatInt(userID, 10) + "/reservations"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &env); err != nil {
		return nil, err
	}
	if err := envelopeErr("list reservations", env.Success, env.Message); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ─── Chatbot tools ───────────────────────────────────────────────────────────

type toolEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// GetMovieInfoTool asks the upstream tool endpoint about one movie by name
// and returns the raw tool payload for the chatbot to render.
func (c *Client) GetMovieInfoTool(ctx context.Context, movieName string) (json.RawMessage, error) {
	body := map[string]any{"movieName": movieName}
	var env toolEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/mcp/tools/getMovieInfo", nil, body, &env); err != nil {
		return nil, err
	}
	if err := envelopeErr("getMovieInfo tool", env.Success, env.Message); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SearchMoviesTool runs a free-text movie search through the upstream tool
// endpoint.
func (c *Client) SearchMoviesTool(ctx context.Context, query string) (json.RawMessage, error) {
	body := map[string]any{"query": query}
	var env toolEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/mcp/tools/searchMovies", nil, body, &env); err != nil {
		return nil, err
	}
	if err := envelopeErr("searchMovies tool", env.Success, env.Message); err != nil {
		return nil, err
	}
	return env.Data, nil
}
