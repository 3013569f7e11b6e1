package commenttree

import "time"

// BlockedPlaceholder replaces the content of moderation-blocked comments in
// snapshots until the viewer explicitly reveals them.
const BlockedPlaceholder = "This comment was hidden by the moderation filter."

// Node is one comment or reply in a thread forest. Replies hold direct
// children in insertion order (oldest first); nesting depth is unbounded.
type Node struct {
	ID              int64      `json:"id"`
	ParentID        *int64     `json:"parent_id,omitempty"`
	AuthorID        int64      `json:"author_id"`
	AuthorNickname  string     `json:"author_nickname"`
	AuthorAvatarURL string     `json:"author_avatar_url,omitempty"`
	Content         string     `json:"content"`
	Rating          *float64   `json:"rating,omitempty"` // top-level review comments only
	LikeCount       int64      `json:"like_count"`
	LikedByMe       bool       `json:"liked_by_me"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	Blocked         bool       `json:"blocked"`
	Replies         []*Node    `json:"replies"`

	// Snapshot-only decorations; never set on the live forest.
	Pending  bool `json:"pending,omitempty"`
	Revealed bool `json:"revealed,omitempty"`
}

// findNode walks the forest depth-first and returns the node with the given
// id, or nil. Node location is not indexed; the forest is small enough that
// a plain recursive walk wins over maintaining an index across mutations.
func findNode(forest []*Node, id int64) *Node {
	for _, n := range forest {
		if n.ID == id {
			return n
		}
		if found := findNode(n.Replies, id); found != nil {
			return found
		}
	}
	return nil
}

// removeSubtree removes the node with the given id together with its whole
// reply subtree (cascade, mirroring the upstream delete semantics). It
// returns the updated list and the number of nodes removed (0 if not found).
func removeSubtree(forest []*Node, id int64) ([]*Node, int) {
	for i, n := range forest {
		if n.ID == id {
			removed := subtreeSize(n)
			return append(forest[:i], forest[i+1:]...), removed
		}
		if updated, removed := removeSubtree(n.Replies, id); removed > 0 {
			n.Replies = updated
			return forest, removed
		}
	}
	return forest, 0
}

// subtreeSize counts the node itself plus all descendants.
func subtreeSize(n *Node) int {
	total := 1
	for _, r := range n.Replies {
		total += subtreeSize(r)
	}
	return total
}

// forestSize counts every node in the forest.
func forestSize(forest []*Node) int {
	total := 0
	for _, n := range forest {
		total += subtreeSize(n)
	}
	return total
}

// cloneForest deep-copies a forest so renderers can never alias live state.
func cloneForest(forest []*Node) []*Node {
	if forest == nil {
		return nil
	}
	out := make([]*Node, len(forest))
	for i, n := range forest {
		out[i] = cloneNode(n)
	}
	return out
}

func cloneNode(n *Node) *Node {
	c := *n
	if n.ParentID != nil {
		pid := *n.ParentID
		c.ParentID = &pid
	}
	if n.Rating != nil {
		r := *n.Rating
		c.Rating = &r
	}
	if n.UpdatedAt != nil {
		u := *n.UpdatedAt
		c.UpdatedAt = &u
	}
	c.Replies = cloneForest(n.Replies)
	return &c
}
