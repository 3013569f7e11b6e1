package moviehub

import (
	"context"

	"github.com/example/movie-platform/services/viewer/internal/commenttree"
)

// TreeTransport adapts the REST client to the commenttree Transport port,
// translating wire DTOs into tree nodes.
type TreeTransport struct {
	c *Client
}

func NewTreeTransport(c *Client) *TreeTransport { return &TreeTransport{c: c} }

var _ commenttree.Transport = (*TreeTransport)(nil)

func (t *TreeTransport) FetchThread(ctx context.Context, reviewID, viewerID int64) ([]*commenttree.Node, error) {
	dtos, _, err := t.c.FetchCommentTree(ctx, reviewID, viewerID)
	if err != nil {
		return nil, err
	}
	return nodesFromDTOs(dtos), nil
}

func (t *TreeTransport) CreateComment(ctx context.Context, reviewID int64, parentID *int64, userID int64, content string) (*commenttree.Node, error) {
	id, createdAt, err := t.c.CreateComment(ctx, reviewID, parentID, userID, content)
	if err != nil {
		return nil, err
	}
	// The create endpoint returns only the assigned id and timestamp. Author
	// fields stay zero so the store decorates them from its viewer snapshot.
	var pid *int64
	if parentID != nil {
		p := *parentID
		pid = &p
	}
	return &commenttree.Node{
		ID:        id,
		ParentID:  pid,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

func (t *TreeTransport) UpdateComment(ctx context.Context, commentID, userID int64, content string) error {
	return t.c.UpdateComment(ctx, commentID, userID, content)
}

func (t *TreeTransport) DeleteComment(ctx context.Context, commentID, userID int64) error {
	return t.c.DeleteComment(ctx, commentID, userID)
}

func (t *TreeTransport) LikeComment(ctx context.Context, commentID, userID int64) error {
	return t.c.LikeComment(ctx, commentID, userID)
}

func (t *TreeTransport) UnlikeComment(ctx context.Context, commentID, userID int64) error {
	return t.c.UnlikeComment(ctx, commentID, userID)
}

func nodesFromDTOs(dtos []CommentDTO) []*commenttree.Node {
	if dtos == nil {
		return nil
	}
	out := make([]*commenttree.Node, len(dtos))
	for i := range dtos {
		out[i] = nodeFromDTO(&dtos[i])
	}
	return out
}

func nodeFromDTO(d *CommentDTO) *commenttree.Node {
	n := &commenttree.Node{
		ID:              d.ID,
		AuthorID:        d.UserID,
		AuthorNickname:  d.UserNickname,
		AuthorAvatarURL: d.UserProfileImageURL,
		Content:         d.Content,
		LikeCount:       d.LikeCount,
		LikedByMe:       d.LikedByMe,
		CreatedAt:       d.CreatedAt,
		Blocked:         d.IsBlockedByCleanbot,
		Replies:         nodesFromDTOs(d.Replies),
	}
	if d.ParentID != nil {
		p := *d.ParentID
		n.ParentID = &p
	}
	if d.Rating != nil {
		r := *d.Rating
		n.Rating = &r
	}
	if d.UpdatedAt != nil {
		u := *d.UpdatedAt
		n.UpdatedAt = &u
	}
	return n
}
