// Package commenttree holds the client-side state of one open comment
// thread: a forest of comments and replies for a single review, mutated
// optimistically and reconciled against the upstream REST API.
package commenttree

import (
	"context"
	"sync"
	"time"
)

// Transport is the port to the upstream comments API. Implementations must
// be safe for concurrent use; viewerID 0 means anonymous.
type Transport interface {
	FetchThread(ctx context.Context, reviewID, viewerID int64) ([]*Node, error)
	CreateComment(ctx context.Context, reviewID int64, parentID *int64, userID int64, content string) (*Node, error)
	UpdateComment(ctx context.Context, commentID, userID int64, content string) error
	DeleteComment(ctx context.Context, commentID, userID int64) error
	LikeComment(ctx context.Context, commentID, userID int64) error
	UnlikeComment(ctx context.Context, commentID, userID int64) error
}

// Viewer identifies the signed-in user a store acts for. A nil viewer makes
// the store read-only: every mutation fails with ErrAuthRequired before any
// request is issued.
type Viewer struct {
	ID        int64
	Nickname  string
	AvatarURL string
}

// Store owns the comment forest for one open thread view. It is created
// when the view opens, fed by Load, mutated by user actions, and discarded
// on Close. Two views of the same review get independent stores; they only
// converge by each re-fetching.
type Store struct {
	tr       Transport
	reviewID int64
	viewer   *Viewer

	mu           sync.Mutex
	forest       []*Node
	gen          uint64 // bumped whenever Load replaces the forest
	loaded       bool
	closed       bool
	likeInFlight map[int64]struct{}
	pendingDel   map[int64]struct{}
	revealed     map[int64]struct{}
}

func New(tr Transport, reviewID int64, viewer *Viewer) *Store {
	return &Store{
		tr:           tr,
		reviewID:     reviewID,
		viewer:       viewer,
		likeInFlight: make(map[int64]struct{}),
		pendingDel:   make(map[int64]struct{}),
		revealed:     make(map[int64]struct{}),
	}
}

func (s *Store) ReviewID() int64 { return s.reviewID }

// Viewer returns the bound viewer, or nil for an anonymous store.
func (s *Store) Viewer() *Viewer { return s.viewer }

// Load fetches the full tree for the review. On failure the previously
// loaded forest, if any, stays intact so the caller can offer a retry
// without blanking the view.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	var viewerID int64
	if s.viewer != nil {
		viewerID = s.viewer.ID
	}
	s.mu.Unlock()

	forest, err := s.tr.FetchThread(ctx, s.reviewID, viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err != nil {
		return fetchErr(err)
	}
	s.forest = forest
	s.gen++
	s.loaded = true
	return nil
}

// Loaded reports whether at least one fetch has succeeded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Close invalidates the store. Responses of requests still in flight are
// discarded when they arrive: the forest of a closed view is never mutated
// again, not even to roll back.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// ToggleLike flips the viewer's like on a comment optimistically and settles
// it against the upstream. currentlyLiked is the state the caller rendered;
// it decides the direction so a stale double-tap cannot drift the count.
// A second toggle for the same comment while one is in flight is rejected
// with ErrLikeInFlight; a toggle on a comment that has concurrently vanished
// is a no-op.
func (s *Store) ToggleLike(ctx context.Context, nodeID int64, currentlyLiked bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.viewer == nil {
		s.mu.Unlock()
		return ErrAuthRequired
	}
	if _, busy := s.likeInFlight[nodeID]; busy {
		s.mu.Unlock()
		return ErrLikeInFlight
	}
	s.likeInFlight[nodeID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.likeInFlight, nodeID)
		s.mu.Unlock()
	}()

	return s.optimistic(ctx, nodeID,
		func(n *Node) func(*Node) {
			prevLiked := n.LikedByMe
			var applied int64
			if currentlyLiked {
				if n.LikeCount > 0 {
					n.LikeCount--
					applied = -1
				}
			} else {
				n.LikeCount++
				applied = 1
			}
			n.LikedByMe = !currentlyLiked
			return func(n *Node) {
				n.LikeCount -= applied
				n.LikedByMe = prevLiked
			}
		},
		func(ctx context.Context, viewerID int64) error {
			if currentlyLiked {
				return s.tr.UnlikeComment(ctx, nodeID, viewerID)
			}
			return s.tr.LikeComment(ctx, nodeID, viewerID)
		},
	)
}

// optimistic is the shared three-phase mutation protocol: apply the local
// patch, issue the request, then either confirm (no-op) or apply the inverse
// patch returned by the first phase. Responses arriving after Close are
// discarded without touching the forest, and the inverse patch is dropped
// when a reload has replaced the forest since the patch was applied.
func (s *Store) optimistic(ctx context.Context, nodeID int64, patch func(*Node) func(*Node), send func(context.Context, int64) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	n := findNode(s.forest, nodeID)
	if n == nil {
		// Concurrently removed by a reconciling fetch; nothing to do.
		s.mu.Unlock()
		return nil
	}
	revert := patch(n)
	genAtPatch := s.gen
	viewerID := s.viewer.ID
	s.mu.Unlock()

	err := send(ctx, viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err != nil {
		// A reload that landed while the request was in flight replaced the
		// forest with server truth; the inverse patch only applies to the
		// forest the optimistic patch touched.
		if s.gen == genAtPatch {
			if cur := findNode(s.forest, nodeID); cur != nil {
				revert(cur)
			}
		}
		return mutationErr(err)
	}
	return nil
}

// AddReply validates and submits a new comment. parentID nil creates a
// top-level comment. There is no optimistic placeholder: the node is only
// inserted once the upstream confirms it, carrying the authoritative id and
// timestamp, appended after its existing siblings.
func (s *Store) AddReply(ctx context.Context, parentID *int64, content string) (*Node, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	if s.viewer == nil {
		s.mu.Unlock()
		return nil, ErrAuthRequired
	}
	if parentID != nil && findNode(s.forest, *parentID) == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	viewer := *s.viewer
	s.mu.Unlock()

	created, err := s.tr.CreateComment(ctx, s.reviewID, parentID, viewer.ID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if err != nil {
		return nil, mutationErr(err)
	}

	// The upstream create response carries no author block; the creator is
	// always the session viewer, so decorate from the store's snapshot.
	if created.AuthorID == 0 {
		created.AuthorID = viewer.ID
	}
	if created.AuthorNickname == "" {
		created.AuthorNickname = viewer.Nickname
		created.AuthorAvatarURL = viewer.AvatarURL
	}
	if parentID == nil {
		s.forest = append(s.forest, created)
		return cloneNode(created), nil
	}
	parent := findNode(s.forest, *parentID)
	if parent == nil {
		// Parent vanished while the request was in flight. The upstream has
		// the reply; the next Load reconciles it.
		return cloneNode(created), nil
	}
	parent.Replies = append(parent.Replies, created)
	return cloneNode(created), nil
}

// EditContent validates and submits an edit. The node is patched in place
// only after the upstream confirms, preserving its replies and like state.
func (s *Store) EditContent(ctx context.Context, nodeID int64, content string) error {
	if err := validateContent(content); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.viewer == nil {
		s.mu.Unlock()
		return ErrAuthRequired
	}
	if findNode(s.forest, nodeID) == nil {
		s.mu.Unlock()
		return nil
	}
	viewerID := s.viewer.ID
	s.mu.Unlock()

	err := s.tr.UpdateComment(ctx, nodeID, viewerID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err != nil {
		return mutationErr(err)
	}
	if n := findNode(s.forest, nodeID); n != nil {
		n.Content = content
		now := time.Now().UTC()
		n.UpdatedAt = &now
	}
	return nil
}

// Delete removes a comment and its whole reply subtree, but only after the
// upstream confirms. While the request is in flight the node stays visible
// with a pending flag; a failed delete never leaves a ghost-removed node.
func (s *Store) Delete(ctx context.Context, nodeID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.viewer == nil {
		s.mu.Unlock()
		return ErrAuthRequired
	}
	if findNode(s.forest, nodeID) == nil {
		s.mu.Unlock()
		return nil
	}
	s.pendingDel[nodeID] = struct{}{}
	viewerID := s.viewer.ID
	s.mu.Unlock()

	err := s.tr.DeleteComment(ctx, nodeID, viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingDel, nodeID)
	if s.closed {
		return ErrStoreClosed
	}
	if err != nil {
		return mutationErr(err)
	}
	s.forest, _ = removeSubtree(s.forest, nodeID)
	delete(s.revealed, nodeID)
	return nil
}

// ToggleReveal flips the session-local reveal state of a moderation-blocked
// comment and reports the new state. It never talks to the upstream and is
// forgotten when the view closes.
func (s *Store) ToggleReveal(nodeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	n := findNode(s.forest, nodeID)
	if n == nil {
		return false, ErrNotFound
	}
	if !n.Blocked {
		return true, nil
	}
	if _, on := s.revealed[nodeID]; on {
		delete(s.revealed, nodeID)
		return false, nil
	}
	s.revealed[nodeID] = struct{}{}
	return true, nil
}

// Snapshot returns a deep copy of the forest for rendering. Blocked comments
// have their content masked unless revealed, and nodes with an unconfirmed
// delete carry the pending flag. Snapshots of a closed store still work;
// they show the forest as it was when the view closed.
func (s *Store) Snapshot() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := cloneForest(s.forest)
	s.decorate(out)
	return out
}

func (s *Store) decorate(forest []*Node) {
	for _, n := range forest {
		if _, pending := s.pendingDel[n.ID]; pending {
			n.Pending = true
		}
		if n.Blocked {
			if _, on := s.revealed[n.ID]; on {
				n.Revealed = true
			} else {
				n.Content = BlockedPlaceholder
			}
		}
		s.decorate(n.Replies)
	}
}

// Size reports the total number of nodes currently in the forest.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return forestSize(s.forest)
}
