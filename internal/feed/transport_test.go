package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/TheYuriG/feedsync/internal/domain"
)

// fakeTransport implements domain.Transport with per-call function hooks and
// records the order of calls made against it.
type fakeTransport struct {
	mu    sync.Mutex
	calls []string

	fetchPageFn func(page int) (*domain.Page, error)
	fetchPostFn func(id string) (*domain.Post, error)
	createFn    func(title, content, imageURL string) (*domain.Post, error)
	updateFn    func(id, title, content, imageURL string) (*domain.Post, error)
	deleteFn    func(id string) error
	uploadFn    func(filename string, data []byte, oldPath string) (string, error)
	statusFn    func() (string, error)
	setStatusFn func(status string) error
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *fakeTransport) countCalls(name string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeTransport) FetchPage(_ context.Context, page int) (*domain.Page, error) {
	f.record("fetchPage")
	if f.fetchPageFn == nil {
		return &domain.Page{}, nil
	}
	return f.fetchPageFn(page)
}

func (f *fakeTransport) FetchPost(_ context.Context, id string) (*domain.Post, error) {
	f.record("fetchPost")
	if f.fetchPostFn == nil {
		return nil, domain.ErrRequestFailed
	}
	return f.fetchPostFn(id)
}

func (f *fakeTransport) CreatePost(_ context.Context, title, content, imageURL string) (*domain.Post, error) {
	f.record("createPost")
	if f.createFn == nil {
		return nil, domain.ErrRequestFailed
	}
	return f.createFn(title, content, imageURL)
}

func (f *fakeTransport) UpdatePost(_ context.Context, id, title, content, imageURL string) (*domain.Post, error) {
	f.record("updatePost")
	if f.updateFn == nil {
		return nil, domain.ErrRequestFailed
	}
	return f.updateFn(id, title, content, imageURL)
}

func (f *fakeTransport) DeletePost(_ context.Context, id string) error {
	f.record("deletePost")
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(id)
}

func (f *fakeTransport) UploadImage(_ context.Context, filename string, data []byte, oldPath string) (string, error) {
	f.record("uploadImage")
	if f.uploadFn == nil {
		return "", domain.ErrRequestFailed
	}
	return f.uploadFn(filename, data, oldPath)
}

func (f *fakeTransport) UserStatus(_ context.Context) (string, error) {
	f.record("userStatus")
	if f.statusFn == nil {
		return "", nil
	}
	return f.statusFn()
}

func (f *fakeTransport) UpdateUserStatus(_ context.Context, status string) error {
	f.record("updateUserStatus")
	if f.setStatusFn == nil {
		return nil
	}
	return f.setStatusFn(status)
}

func newTestStore(transport domain.Transport) *Store {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(transport, "http://feed.test", DefaultPageSize, logger)
}

// makePosts returns n posts, newest first, ids p1..pn.
func makePosts(n int) []domain.Post {
	posts := make([]domain.Post, n)
	for i := range posts {
		posts[i] = domain.Post{
			ID:       fmt.Sprintf("p%d", i+1),
			Title:    fmt.Sprintf("post %d", i+1),
			Content:  "content",
			ImageURL: fmt.Sprintf("uploads/p%d.png", i+1),
			Creator:  "maria",
		}
	}
	return posts
}

// loadFixedPage installs posts as page n of the store.
func loadFixedPage(t *testing.T, s *Store, ft *fakeTransport, n int, posts []domain.Post, total int) {
	t.Helper()
	ft.fetchPageFn = func(int) (*domain.Page, error) {
		return &domain.Page{Posts: posts, TotalItems: total}, nil
	}
	s.LoadPage(context.Background(), n)
	if got := s.Snapshot().Page; got != n {
		t.Fatalf("expected page %d after load, got %d", n, got)
	}
}
