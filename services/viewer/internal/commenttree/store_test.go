package commenttree

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubStatusErr mimics an upstream HTTP error.
type stubStatusErr struct{ status int }

func (e *stubStatusErr) Error() string   { return "upstream status error" }
func (e *stubStatusErr) HTTPStatus() int { return e.status }

// stubTransport counts calls and lets tests control responses. likeGate, when
// set, blocks Like/Unlike until released so tests can interleave close/toggle.
type stubTransport struct {
	mu sync.Mutex

	fetchForest []*Node
	fetchErr    error
	fetchCalls  int

	createNode  *Node
	createErr   error
	createCalls int

	updateErr   error
	updateCalls int

	deleteErr   error
	deleteCalls int

	likeErr     error
	likeCalls   int
	unlikeErr   error
	unlikeCalls int

	likeGate    chan struct{} // closed by the test to release Like/Unlike
	likeStarted chan struct{} // signalled when Like/Unlike begins
}

func (s *stubTransport) FetchThread(_ context.Context, _, _ int64) ([]*Node, error) {
	s.mu.Lock()
	s.fetchCalls++
	forest, err := s.fetchForest, s.fetchErr
	s.mu.Unlock()
	return cloneForest(forest), err
}

func (s *stubTransport) CreateComment(_ context.Context, _ int64, parentID *int64, _ int64, content string) (*Node, error) {
	s.mu.Lock()
	s.createCalls++
	node, err := s.createNode, s.createErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	created := cloneNode(node)
	created.Content = content
	if parentID != nil {
		pid := *parentID
		created.ParentID = &pid
	}
	return created, nil
}

func (s *stubTransport) UpdateComment(_ context.Context, _, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	return s.updateErr
}

func (s *stubTransport) DeleteComment(_ context.Context, _, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	return s.deleteErr
}

func (s *stubTransport) LikeComment(_ context.Context, _, _ int64) error {
	s.mu.Lock()
	s.likeCalls++
	gate, started := s.likeGate, s.likeStarted
	err := s.likeErr
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (s *stubTransport) UnlikeComment(_ context.Context, _, _ int64) error {
	s.mu.Lock()
	s.unlikeCalls++
	gate, started := s.likeGate, s.likeStarted
	err := s.unlikeErr
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func testViewer() *Viewer {
	return &Viewer{ID: 42, Nickname: "moviefan", AvatarURL: "https://img.example.com/u/42.png"}
}

// loadedStore builds a store over the given forest with a fetch already done.
func loadedStore(t *testing.T, tr *stubTransport, forest []*Node, viewer *Viewer) *Store {
	t.Helper()
	tr.fetchForest = forest
	s := New(tr, 7, viewer)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func singleNodeForest(likeCount int64, likedByMe bool) []*Node {
	return []*Node{{
		ID: 1, AuthorID: 10, AuthorNickname: "ann", Content: "great movie",
		LikeCount: likeCount, LikedByMe: likedByMe,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
}

// ─── Load ────────────────────────────────────────────────────────────────────

func TestLoad_FailureKeepsPriorForest(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	tr.mu.Lock()
	tr.fetchErr = errors.New("connection refused")
	tr.mu.Unlock()

	err := s.Load(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if s.Size() != 5 {
		t.Fatalf("expected prior forest retained (5 nodes), got %d", s.Size())
	}
}

func TestLoad_RetrySucceeds(t *testing.T) {
	tr := &stubTransport{fetchErr: errors.New("timeout")}
	s := New(tr, 7, nil)

	if err := s.Load(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if s.Loaded() {
		t.Fatal("store must not report loaded after a failed fetch")
	}

	tr.mu.Lock()
	tr.fetchErr = nil
	tr.fetchForest = buildForest()
	tr.mu.Unlock()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("retry load: %v", err)
	}
	if !s.Loaded() || s.Size() != 5 {
		t.Fatalf("expected loaded forest of 5 nodes, got loaded=%v size=%d", s.Loaded(), s.Size())
	}
	if tr.fetchCalls != 2 {
		t.Fatalf("expected 2 fetch calls, got %d", tr.fetchCalls)
	}
}

// ─── ToggleLike ──────────────────────────────────────────────────────────────

func TestToggleLike_Symmetry(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	if err := s.ToggleLike(context.Background(), 1, false); err != nil {
		t.Fatalf("like: %v", err)
	}
	n := s.Snapshot()[0]
	if n.LikeCount != 4 || !n.LikedByMe {
		t.Fatalf("after like: expected count=4 liked=true, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}

	if err := s.ToggleLike(context.Background(), 1, true); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	n = s.Snapshot()[0]
	if n.LikeCount != 3 || n.LikedByMe {
		t.Fatalf("after unlike: expected count=3 liked=false, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
	if tr.likeCalls != 1 || tr.unlikeCalls != 1 {
		t.Fatalf("expected 1 like + 1 unlike call, got %d/%d", tr.likeCalls, tr.unlikeCalls)
	}
}

func TestToggleLike_RollbackOnFailure(t *testing.T) {
	tr := &stubTransport{likeErr: errors.New("boom")}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	err := s.ToggleLike(context.Background(), 1, false)
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	n := s.Snapshot()[0]
	if n.LikeCount != 3 || n.LikedByMe {
		t.Fatalf("expected exact pre-call state count=3 liked=false, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestToggleLike_FailedUnlikeRevertsToLiked(t *testing.T) {
	// Like succeeds optimistically, then an unlike fails and must be undone,
	// leaving the liked state in place.
	tr := &stubTransport{}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	if err := s.ToggleLike(context.Background(), 1, false); err != nil {
		t.Fatalf("like: %v", err)
	}
	n := s.Snapshot()[0]
	if n.LikeCount != 4 || !n.LikedByMe {
		t.Fatalf("after like: expected count=4 liked=true, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}

	tr.mu.Lock()
	tr.unlikeErr = errors.New("server error")
	tr.mu.Unlock()

	err := s.ToggleLike(context.Background(), 1, true)
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	n = s.Snapshot()[0]
	if n.LikeCount != 4 || !n.LikedByMe {
		t.Fatalf("failed unlike must revert to count=4 liked=true, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestToggleLike_UnlikeAtZeroDoesNotUnderflow(t *testing.T) {
	tr := &stubTransport{unlikeErr: errors.New("boom")}
	s := loadedStore(t, tr, singleNodeForest(0, true), testViewer())

	_ = s.ToggleLike(context.Background(), 1, true)
	n := s.Snapshot()[0]
	if n.LikeCount != 0 || !n.LikedByMe {
		t.Fatalf("expected count=0 liked=true restored, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestToggleLike_SecondToggleWhileInFlight(t *testing.T) {
	tr := &stubTransport{
		likeGate:    make(chan struct{}),
		likeStarted: make(chan struct{}, 1),
	}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	done := make(chan error, 1)
	go func() { done <- s.ToggleLike(context.Background(), 1, false) }()
	<-tr.likeStarted

	if err := s.ToggleLike(context.Background(), 1, true); !errors.Is(err, ErrLikeInFlight) {
		t.Fatalf("expected ErrLikeInFlight for concurrent toggle, got %v", err)
	}

	close(tr.likeGate)
	if err := <-done; err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	n := s.Snapshot()[0]
	if n.LikeCount != 4 || !n.LikedByMe {
		t.Fatalf("expected count=4 liked=true, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestToggleLike_Anonymous(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, singleNodeForest(3, false), nil)

	if err := s.ToggleLike(context.Background(), 1, false); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if tr.likeCalls != 0 {
		t.Fatalf("expected no request for anonymous toggle, got %d", tr.likeCalls)
	}
}

func TestToggleLike_Upstream401(t *testing.T) {
	tr := &stubTransport{likeErr: &stubStatusErr{status: http.StatusUnauthorized}}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	err := s.ToggleLike(context.Background(), 1, false)
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired for upstream 401, got %v", err)
	}
	n := s.Snapshot()[0]
	if n.LikeCount != 3 || n.LikedByMe {
		t.Fatalf("expected rollback after 401, got count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestToggleLike_MissingNodeIsNoOp(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	if err := s.ToggleLike(context.Background(), 99, false); err != nil {
		t.Fatalf("expected no-op for missing node, got %v", err)
	}
	if tr.likeCalls != 0 {
		t.Fatalf("expected no request for missing node, got %d", tr.likeCalls)
	}
}

// ─── Stale-view discard ──────────────────────────────────────────────────────

func TestToggleLike_ResponseAfterCloseDiscarded(t *testing.T) {
	tr := &stubTransport{
		likeGate:    make(chan struct{}),
		likeStarted: make(chan struct{}, 1),
		likeErr:     errors.New("late failure"),
	}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	done := make(chan error, 1)
	go func() { done <- s.ToggleLike(context.Background(), 1, false) }()
	<-tr.likeStarted

	// View closes while the request is in flight.
	s.Close()
	close(tr.likeGate)

	if err := <-done; !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	// The failure response must not roll back the detached forest: it keeps
	// the optimistic value it had when the view closed.
	n := s.Snapshot()[0]
	if n.LikeCount != 4 || !n.LikedByMe {
		t.Fatalf("closed-view forest mutated: count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestToggleLike_FailureAcrossReloadKeepsServerTruth(t *testing.T) {
	tr := &stubTransport{
		likeGate:    make(chan struct{}),
		likeStarted: make(chan struct{}, 1),
		likeErr:     errors.New("late failure"),
	}
	s := loadedStore(t, tr, singleNodeForest(3, false), testViewer())

	done := make(chan error, 1)
	go func() { done <- s.ToggleLike(context.Background(), 1, false) }()
	<-tr.likeStarted

	// A refresh lands while the like is in flight and replaces the forest
	// with server truth.
	tr.mu.Lock()
	tr.fetchForest = singleNodeForest(10, false)
	tr.mu.Unlock()
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	close(tr.likeGate)
	if err := <-done; !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	// The inverse patch must not touch the reloaded node.
	n := s.Snapshot()[0]
	if n.LikeCount != 10 || n.LikedByMe {
		t.Fatalf("reloaded node corrupted by revert: count=%d liked=%v", n.LikeCount, n.LikedByMe)
	}
}

func TestMutationsAfterClose(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())
	s.Close()

	if err := s.ToggleLike(context.Background(), 1, false); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("toggle: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.AddReply(context.Background(), i64(1), "late"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("reply: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Load(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("load: expected ErrStoreClosed, got %v", err)
	}
}

// ─── AddReply ────────────────────────────────────────────────────────────────

func TestAddReply_AppendsAsLastChild(t *testing.T) {
	tr := &stubTransport{createNode: &Node{ID: 100, CreatedAt: time.Now().UTC()}}
	s := loadedStore(t, tr, buildForest(), testViewer())

	created, err := s.AddReply(context.Background(), i64(1), "a new reply")
	if err != nil {
		t.Fatalf("add reply: %v", err)
	}
	if created.ID != 100 {
		t.Fatalf("expected server-assigned id 100, got %d", created.ID)
	}

	parent := findNode(s.Snapshot(), 1)
	if len(parent.Replies) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(parent.Replies))
	}
	// Existing siblings keep their relative order; new node is last.
	if parent.Replies[0].ID != 2 || parent.Replies[1].ID != 3 || parent.Replies[2].ID != 100 {
		t.Fatalf("unexpected reply order: %d, %d, %d",
			parent.Replies[0].ID, parent.Replies[1].ID, parent.Replies[2].ID)
	}
	if parent.Replies[2].AuthorID != 42 {
		t.Fatalf("expected viewer snapshot on created node, got author %d", parent.Replies[2].AuthorID)
	}
}

func TestAddReply_TopLevel(t *testing.T) {
	tr := &stubTransport{createNode: &Node{ID: 101, CreatedAt: time.Now().UTC()}}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if _, err := s.AddReply(context.Background(), nil, "a new root comment"); err != nil {
		t.Fatalf("add top-level: %v", err)
	}
	roots := s.Snapshot()
	if len(roots) != 3 || roots[2].ID != 101 {
		t.Fatalf("expected new root appended last, got %d roots", len(roots))
	}
}

func TestAddReply_ValidationShortCircuit(t *testing.T) {
	tr := &stubTransport{createNode: &Node{ID: 100}}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if _, err := s.AddReply(context.Background(), i64(1), "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank content, got %v", err)
	}
	long := strings.Repeat("글", MaxContentLength+1)
	if _, err := s.AddReply(context.Background(), i64(1), long); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for oversized content, got %v", err)
	}
	if tr.createCalls != 0 {
		t.Fatalf("validation failures must not issue requests, got %d calls", tr.createCalls)
	}
}

func TestAddReply_NoOptimisticInsertOnFailure(t *testing.T) {
	tr := &stubTransport{createErr: errors.New("boom")}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if _, err := s.AddReply(context.Background(), i64(1), "doomed"); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	parent := findNode(s.Snapshot(), 1)
	if len(parent.Replies) != 2 {
		t.Fatalf("failed create must not insert a placeholder, got %d replies", len(parent.Replies))
	}
}

func TestAddReply_MissingParent(t *testing.T) {
	tr := &stubTransport{createNode: &Node{ID: 100}}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if _, err := s.AddReply(context.Background(), i64(99), "orphan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if tr.createCalls != 0 {
		t.Fatalf("expected no request for missing parent, got %d", tr.createCalls)
	}
}

// ─── EditContent ─────────────────────────────────────────────────────────────

func TestEditContent_PatchesInPlace(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if err := s.EditContent(context.Background(), 2, "edited body"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	n := findNode(s.Snapshot(), 2)
	if n.Content != "edited body" {
		t.Fatalf("expected edited content, got %q", n.Content)
	}
	if n.UpdatedAt == nil {
		t.Fatal("expected updated_at to be set")
	}
	if len(n.Replies) != 1 || n.Replies[0].ID != 4 {
		t.Fatal("edit must preserve existing replies")
	}
}

func TestEditContent_FailureLeavesNodeUntouched(t *testing.T) {
	tr := &stubTransport{updateErr: errors.New("boom")}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if err := s.EditContent(context.Background(), 2, "edited"); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	n := findNode(s.Snapshot(), 2)
	if n.Content != "first reply" || n.UpdatedAt != nil {
		t.Fatalf("failed edit must leave node untouched, got %q", n.Content)
	}
}

func TestEditContent_ValidationShortCircuit(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if err := s.EditContent(context.Background(), 2, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if tr.updateCalls != 0 {
		t.Fatalf("expected no request, got %d", tr.updateCalls)
	}
}

// ─── Delete ──────────────────────────────────────────────────────────────────

func TestDelete_CascadeAfterConfirmation(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	// Node 1 has 3 descendants: exactly 4 nodes leave the forest.
	if err := s.Delete(context.Background(), 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Size() != 1 {
		t.Fatalf("expected 1 node left, got %d", s.Size())
	}
	if findNode(s.Snapshot(), 3) != nil {
		t.Fatal("descendant 3 must be cascade-removed")
	}
}

func TestDelete_FailureKeepsNode(t *testing.T) {
	tr := &stubTransport{deleteErr: errors.New("boom")}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if err := s.Delete(context.Background(), 1); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	if s.Size() != 5 {
		t.Fatalf("failed delete must not remove nodes, size %d", s.Size())
	}
	// The pending flag is cleared again.
	if findNode(s.Snapshot(), 1).Pending {
		t.Fatal("pending flag must be cleared after a failed delete")
	}
}

func TestDelete_MissingNodeIsNoOp(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	if err := s.Delete(context.Background(), 99); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if tr.deleteCalls != 0 {
		t.Fatalf("expected no request, got %d", tr.deleteCalls)
	}
}

// ─── Moderation reveal ───────────────────────────────────────────────────────

func TestSnapshot_MasksBlockedContent(t *testing.T) {
	forest := buildForest()
	findNode(forest, 3).Blocked = true
	tr := &stubTransport{}
	s := loadedStore(t, tr, forest, testViewer())

	n := findNode(s.Snapshot(), 3)
	if n.Content != BlockedPlaceholder {
		t.Fatalf("expected masked content, got %q", n.Content)
	}

	on, err := s.ToggleReveal(3)
	if err != nil || !on {
		t.Fatalf("expected reveal on, got on=%v err=%v", on, err)
	}
	n = findNode(s.Snapshot(), 3)
	if n.Content != "second reply" || !n.Revealed {
		t.Fatalf("expected revealed content, got %q revealed=%v", n.Content, n.Revealed)
	}

	off, err := s.ToggleReveal(3)
	if err != nil || off {
		t.Fatalf("expected reveal toggled off, got on=%v err=%v", off, err)
	}
	if findNode(s.Snapshot(), 3).Content != BlockedPlaceholder {
		t.Fatal("expected content masked again")
	}
}

func TestToggleReveal_UnblockedNode(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	on, err := s.ToggleReveal(2)
	if err != nil || !on {
		t.Fatalf("unblocked node is always visible, got on=%v err=%v", on, err)
	}
}

// ─── Snapshot isolation ──────────────────────────────────────────────────────

func TestSnapshot_DoesNotAliasLiveForest(t *testing.T) {
	tr := &stubTransport{}
	s := loadedStore(t, tr, buildForest(), testViewer())

	snap := s.Snapshot()
	snap[0].Content = "mutated by renderer"
	snap[0].Replies[0].LikeCount = 999

	fresh := s.Snapshot()
	if fresh[0].Content == "mutated by renderer" || fresh[0].Replies[0].LikeCount == 999 {
		t.Fatal("snapshot must be a deep copy")
	}
}
