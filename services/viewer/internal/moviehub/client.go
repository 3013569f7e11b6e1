// Package moviehub is the REST client for the upstream movie backend. All
// durable state (comments, movies, reservations, users) lives there; this
// edge only reads and writes through the JSON API.
package moviehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	APIKey     string // internal service key sent as X-Internal-Api-Key
	HTTPClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://moviehub-api:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx upstream response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moviehub: status %d message=%q", e.Status, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.Status }

const maxResponseBytes = 4 << 20

// doJSON issues one request and decodes the JSON response into out (out may
// be nil). Non-2xx responses become *APIError with a truncated body excerpt.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	rawURL := c.BaseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("moviehub: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "movie-platform-viewer/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-Internal-Api-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: excerpt(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("moviehub: decode error: %w body=%q", err, excerpt(b))
	}
	return nil
}

func excerpt(b []byte) string {
	return string(b[:min(len(b), 200)])
}

// ─── Comments ────────────────────────────────────────────────────────────────

// CommentDTO is the wire shape of one comment, with nested replies.
type CommentDTO struct {
	ID                  int64        `json:"id"`
	Content             string       `json:"content"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           *time.Time   `json:"updatedAt,omitempty"`
	UserID              int64        `json:"userId"`
	UserNickname        string       `json:"userNickname"`
	UserProfileImageURL string       `json:"userProfileImageUrl,omitempty"`
	ReviewID            int64        `json:"reviewId"`
	ParentID            *int64       `json:"parentId,omitempty"`
	Rating              *float64     `json:"rating,omitempty"`
	LikeCount           int64        `json:"likeCount"`
	LikedByMe           bool         `json:"likedByMe"`
	Replies             []CommentDTO `json:"replies,omitempty"`
	IsBlockedByCleanbot bool         `json:"isBlockedByCleanbot"`
}

type commentListEnvelope struct {
	Success    bool         `json:"success"`
	Data       []CommentDTO `json:"data"`
	Count      int          `json:"count"`
	TotalCount int64        `json:"totalCount"`
	Message    string       `json:"message,omitempty"`
}

type commentMutationEnvelope struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	CommentID int64      `json:"commentId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	LikeCount *int64     `json:"likeCount,omitempty"`
}

// envelopeErr turns a success=false body on a 2xx response into an error.
func envelopeErr(op string, success bool, message string) error {
	if success {
		return nil
	}
	if message == "" {
		message = "upstream reported failure"
	}
	return fmt.Errorf("moviehub: %s: %s", op, message)
}

// FetchCommentTree returns the full comment tree for a review. userID > 0
// decorates each node with the viewer's like state.
func (c *Client) FetchCommentTree(ctx context.Context, reviewID, userID int64) ([]CommentDTO, int64, error) {
	q := url.Values{}
	if userID > 0 {
		q.Set("userId", strconv.FormatInt(userID, 10))
	}
	var env commentListEnvelope
	path := "/api/comments/review/" + strconv.FormatInt(reviewID, 10) + "/all"
	if err := c.doJSON(ctx, http.MethodGet, path, q, nil, &env); err != nil {
		return nil, 0, err
	}
	if err := envelopeErr("fetch comment tree", env.Success, env.Message); err != nil {
		return nil, 0, err
	}
	return env.Data, env.TotalCount, nil
}

// CreateComment posts a new comment or reply and returns the authoritative
// id and creation time assigned upstream.
func (c *Client) CreateComment(ctx context.Context, reviewID int64, parentID *int64, userID int64, content string) (int64, time.Time, error) {
	body := map[string]any{
		"reviewId": reviewID,
		"userId":   userID,
		"content":  content,
	}
	if parentID != nil {
		body["parentId"] = *parentID
	}
	var env commentMutationEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/comments", nil, body, &env); err != nil {
		return 0, time.Time{}, err
	}
	if err := envelopeErr("create comment", env.Success, env.Message); err != nil {
		return 0, time.Time{}, err
	}
	createdAt := time.Now().UTC()
	if env.CreatedAt != nil {
		createdAt = *env.CreatedAt
	}
	return env.CommentID, createdAt, nil
}

func (c *Client) UpdateComment(ctx context.Context, commentID, userID int64, content string) error {
	body := map[string]any{"userId": userID, "content": content}
	var env commentMutationEnvelope
	path := "/api/comments/" + strconv.FormatInt(commentID, 10)
	if err := c.doJSON(ctx, http.MethodPut, path, nil, body, &env); err != nil {
		return err
	}
	return envelopeErr("update comment", env.Success, env.Message)
}

func (c *Client) DeleteComment(ctx context.Context, commentID, userID int64) error {
	q := url.Values{"userId": {strconv.FormatInt(userID, 10)}}
	var env commentMutationEnvelope
	path := "/api/comments/" + strconv.FormatInt(commentID, 10)
	if err := c.doJSON(ctx, http.MethodDelete, path, q, nil, &env); err != nil {
		return err
	}
	return envelopeErr("delete comment", env.Success, env.Message)
}

func (c *Client) LikeComment(ctx context.Context, commentID, userID int64) error {
	body := map[string]any{"userId": userID}
	var env commentMutationEnvelope
	path := "/api/comments/" + strconv.FormatInt(commentID, 10) + "/like"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &env); err != nil {
		return err
	}
	return envelopeErr("like comment", env.Success, env.Message)
}

func (c *Client) UnlikeComment(ctx context.Context, commentID, userID int64) error {
	q := url.Values{"userId": {strconv.FormatInt(userID, 10)}}
	var env commentMutationEnvelope
	path := "/api/comments/" + strconv.FormatInt(commentID, 10) + "/like"
	if err := c.doJSON(ctx, http.MethodDelete, path, q, nil, &env); err != nil {
		return err
	}
	return envelopeErr("unlike comment", env.Success, env.Message)
}
