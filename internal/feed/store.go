// Package feed holds the client-side feed synchronization engine: the store
// that owns the currently displayed page of posts and the coordinator that
// sequences content mutations against the backend.
package feed

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/TheYuriG/feedsync/internal/domain"
)

// DefaultPageSize is the number of posts per feed page unless configured
// otherwise.
const DefaultPageSize = 10

// Direction is a pagination intent.
type Direction int

const (
	Next Direction = iota
	Previous
)

// pendingEdit tracks the single in-progress create or edit. A nil prior
// means a new post draft; otherwise prior is the post being edited as it
// looked when editing began.
type pendingEdit struct {
	prior *domain.Post
}

// Store is the single authoritative in-memory representation of the page of
// posts currently shown to the user. Every mutation, whether it originates
// from a local action or from a push event, goes through its methods; there
// is no other way to change the page. Each method is one complete
// read-modify-write, so callers never observe a partial update.
type Store struct {
	transport domain.Transport
	serverURL string
	pageSize  int
	logger    *slog.Logger

	mu         sync.Mutex
	posts      []domain.Post
	totalPosts int
	page       int
	loading    bool
	lastErr    error
	notice     string
	status     string
	editing    *pendingEdit
	loadSeq    uint64

	changed chan struct{}
}

// NewStore creates a Store. serverURL is the base used to resolve relative
// image references; pageSize <= 0 selects DefaultPageSize.
func NewStore(transport domain.Transport, serverURL string, pageSize int, logger *slog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		transport: transport,
		serverURL: strings.TrimRight(serverURL, "/"),
		pageSize:  pageSize,
		logger:    logger,
		page:      1,
		changed:   make(chan struct{}, 1),
	}
}

// Snapshot is a point-in-time copy of the page state for rendering.
type Snapshot struct {
	Posts      []domain.Post
	TotalPosts int
	Page       int
	LastPage   int
	Loading    bool
	Err        error
	Notice     string
	Status     string
	Editing    bool
}

// Snapshot returns a copy of the current page state. The returned slice is
// owned by the caller.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := make([]domain.Post, len(s.posts))
	copy(posts, s.posts)
	return Snapshot{
		Posts:      posts,
		TotalPosts: s.totalPosts,
		Page:       s.page,
		LastPage:   s.lastPageLocked(),
		Loading:    s.loading,
		Err:        s.lastErr,
		Notice:     s.notice,
		Status:     s.status,
		Editing:    s.editing != nil,
	}
}

// Changed returns a channel that receives a tick after any state change.
// Ticks are coalesced; readers re-snapshot rather than counting them.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// LastPage returns the highest reachable page number given the current total
// count, or 1 for an empty feed.
func (s *Store) LastPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPageLocked()
}

func (s *Store) lastPageLocked() int {
	last := int(math.Ceil(float64(s.totalPosts) / float64(s.pageSize)))
	if last < 1 {
		last = 1
	}
	return last
}

// LoadPage fetches and installs page n. The sequence is cleared and the
// loading flag raised for the duration of the fetch. A LoadPage issued while
// another is in flight supersedes it: only the most recently requested
// page's response is applied, stale responses are discarded. Blocks until
// the fetch completes.
func (s *Store) LoadPage(ctx context.Context, n int) {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.page = n
	s.loading = true
	s.posts = nil
	s.mu.Unlock()
	s.signal()

	result, err := s.transport.FetchPage(ctx, n)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		// a newer load superseded this one while the fetch was in flight
		s.logger.Debug("discarding stale page response", "page", n)
		return
	}
	s.loading = false
	if err != nil {
		s.logger.Error("page load failed", "page", n, "error", err)
		s.lastErr = err
		s.notice = domain.Notice(err, "Failed to fetch posts!")
		s.signal()
		return
	}
	posts := make([]domain.Post, len(result.Posts))
	for i, p := range result.Posts {
		p.ImagePath = s.resolveImage(p.ImageURL)
		posts[i] = p
	}
	s.posts = posts
	s.totalPosts = result.TotalItems
	s.lastErr = nil
	s.logger.Debug("page loaded", "page", n, "posts", len(posts), "total", result.TotalItems)
	s.signal()
}

// Navigate moves one page forward or back, clamped to page 1, and reloads.
func (s *Store) Navigate(ctx context.Context, dir Direction) {
	s.mu.Lock()
	page := s.page
	switch dir {
	case Next:
		page++
	case Previous:
		page--
	}
	if page < 1 {
		page = 1
	}
	s.mu.Unlock()
	s.LoadPage(ctx, page)
}

// ApplyCreated folds a newly created post into the page. On page 1 the post
// is prepended and, if the page overflows, the previous last post is evicted
// to the next page. On any other page only the total count moves. A post
// whose ID is already present is ignored, which keeps IDs unique when the
// push channel echoes a mutation this client already folded.
func (s *Store) ApplyCreated(post domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(post.ID) >= 0 {
		return
	}
	if s.page == 1 {
		post.ImagePath = s.resolveImage(post.ImageURL)
		s.posts = append([]domain.Post{post}, s.posts...)
		if len(s.posts) > s.pageSize {
			s.posts = s.posts[:s.pageSize]
		}
	}
	s.totalPosts++
	s.signal()
}

// ApplyUpdated replaces the matching post in place, preserving its position.
// No-op when the post is not on the current page; it will be picked up by a
// later page load.
func (s *Store) ApplyUpdated(post domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(post.ID)
	if i < 0 {
		return
	}
	post.ImagePath = s.resolveImage(post.ImageURL)
	s.posts[i] = post
	s.signal()
}

// ApplyDeleted reloads the current page. The engine never splices a deleted
// post out locally: the replacement item from the next page is unknown
// client-side, so a full reload is the only correct policy.
func (s *Store) ApplyDeleted(ctx context.Context) {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	s.LoadPage(ctx, page)
}

// HandleEvent folds one push event through the same entry points local
// mutations use. Events are applied in arrival order; whichever write is
// applied later wins.
func (s *Store) HandleEvent(ctx context.Context, event domain.Event) {
	switch event.Action {
	case domain.ActionCreate:
		s.ApplyCreated(event.Post)
	case domain.ActionUpdate:
		s.ApplyUpdated(event.Post)
	case domain.ActionDelete:
		s.ApplyDeleted(ctx)
	default:
		s.logger.Warn("ignoring push event with unknown action", "action", event.Action)
	}
}

// BeginCreate opens the edit surface for a new post draft. Returns false,
// changing nothing, if an edit is already in progress.
func (s *Store) BeginCreate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing != nil {
		return false
	}
	s.editing = &pendingEdit{}
	s.signal()
	return true
}

// BeginEdit opens the edit surface for the identified post. Returns false,
// changing nothing, if an edit is already in progress or the post is not on
// the current page.
func (s *Store) BeginEdit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing != nil {
		return false
	}
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	prior := s.posts[i]
	s.editing = &pendingEdit{prior: &prior}
	s.signal()
	return true
}

// CancelEdit clears the pending edit unconditionally.
func (s *Store) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = nil
	s.signal()
}

// Editing reports whether an edit is in progress and, when editing an
// existing post, a copy of that post as it looked when editing began.
func (s *Store) Editing() (prior *domain.Post, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing == nil {
		return nil, false
	}
	if s.editing.prior == nil {
		return nil, true
	}
	p := *s.editing.prior
	return &p, true
}

// Status returns the signed-in user's status line.
func (s *Store) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LoadStatus fetches the signed-in user's status line.
func (s *Store) LoadStatus(ctx context.Context) {
	status, err := s.transport.UserStatus(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("status load failed", "error", err)
		s.lastErr = err
		s.notice = domain.Notice(err, "Failed to fetch user status.")
		s.signal()
		return
	}
	s.status = status
	s.signal()
}

// UpdateStatus pushes a new status line to the backend, keeping the local
// copy on success.
func (s *Store) UpdateStatus(ctx context.Context, status string) error {
	if err := s.transport.UpdateUserStatus(ctx, status); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logger.Error("status update failed", "error", err)
		s.lastErr = err
		s.notice = domain.Notice(err, "Can't update status!")
		s.signal()
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.signal()
	return nil
}

// Notice returns the current user-facing notice, empty when there is none.
func (s *Store) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// DismissNotice clears the user-facing notice and the stored error.
func (s *Store) DismissNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = ""
	s.lastErr = nil
	s.signal()
}

// beginDelete raises the loading flag while a delete request is in flight.
// The page itself is left untouched until the server confirms.
func (s *Store) beginDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.signal()
}

// deleteFailed lowers the loading flag and surfaces the error. The sequence
// is untouched: a post that failed to delete stays visible.
func (s *Store) deleteFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.lastErr = err
	s.notice = domain.Notice(err, "Deleting a post failed!")
	s.signal()
}

// editFailed clears the pending edit and surfaces the error.
func (s *Store) editFailed(err error, fallback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = nil
	s.lastErr = err
	s.notice = domain.Notice(err, fallback)
	s.signal()
}

// finishEdit clears the pending edit after a successful submit.
func (s *Store) finishEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = nil
	s.signal()
}

func (s *Store) indexOf(id string) int {
	for i := range s.posts {
		if s.posts[i].ID == id {
			return i
		}
	}
	return -1
}

// resolveImage turns a server-relative image reference into an absolute
// content URL. Already-absolute references pass through untouched.
func (s *Store) resolveImage(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	if strings.Contains(imageURL, "://") {
		return imageURL
	}
	return s.serverURL + "/" + strings.TrimLeft(imageURL, "/")
}

// signal delivers a coalesced change tick without ever blocking.
func (s *Store) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
