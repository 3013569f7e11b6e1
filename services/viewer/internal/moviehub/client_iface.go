package moviehub

import (
	"context"
	"encoding/json"
)

// Provider is the port the HTTP handlers consume for everything except
// comment threads (those go through the commenttree Transport). *Client is
// the production implementation; tests use stubs.
type Provider interface {
	FilterMovies(ctx context.Context, f MovieFilter) (*MoviePage, error)
	GetMovie(ctx context.Context, movieCd string) (*MovieDTO, error)
	GetUserInfo(ctx context.Context, userID int64) (*UserInfoDTO, error)
	ListReservations(ctx context.Context, userID int64) ([]ReservationDTO, error)
	GetMovieInfoTool(ctx context.Context, movieName string) (json.RawMessage, error)
	SearchMoviesTool(ctx context.Context, query string) (json.RawMessage, error)
}

var _ Provider = (*Client)(nil)
