package devserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheYuriG/feedsync/internal/api"
	"github.com/TheYuriG/feedsync/internal/config"
	"github.com/TheYuriG/feedsync/internal/domain"
	"github.com/TheYuriG/feedsync/internal/sqlite"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *config.Server) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Server{
		DatabasePath: filepath.Join(dir, "feed.db"),
		UploadsDir:   filepath.Join(dir, "uploads"),
		TokenSecret:  "test-secret",
		PageSize:     10,
	}
	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewServer(cfg, repo, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, cfg
}

func loggedInClient(t *testing.T, srv *httptest.Server, email string) *api.Client {
	t.Helper()
	c := api.NewClient(srv.URL)
	if err := c.Login(context.Background(), email, "whatever"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return c
}

func TestFeedRoutesRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/feed/posts")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}

	// and the client maps it onto the error taxonomy
	c := api.NewClient(srv.URL)
	c.SetToken("garbage-token")
	if _, err := c.FetchPage(context.Background(), 1); !domain.IsUnauthenticated(err) {
		t.Fatalf("expected Unauthenticated for a garbage token, got %v", err)
	}
}

func TestFeedLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loggedInClient(t, srv, "maria@example.com")
	ctx := context.Background()

	page, err := c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("fetch empty page: %v", err)
	}
	if len(page.Posts) != 0 || page.TotalItems != 0 {
		t.Fatalf("expected an empty feed, got %+v", page)
	}

	created, err := c.CreatePost(ctx, "hello", "first post", "uploads/h.png")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Creator != "maria" || created.CreatedAt == "" {
		t.Fatalf("server must assign id, creator and timestamp: %+v", created)
	}

	page, err = c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if page.TotalItems != 1 || len(page.Posts) != 1 || page.Posts[0].ID != created.ID {
		t.Fatalf("created post not served: %+v", page)
	}

	updated, err := c.UpdatePost(ctx, created.ID, "revised", "edited body", "uploads/h.png")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "revised" || updated.Creator != "maria" {
		t.Fatalf("update response mismatch: %+v", updated)
	}

	single, err := c.FetchPost(ctx, created.ID)
	if err != nil {
		t.Fatalf("fetch single: %v", err)
	}
	if single.Content != "edited body" {
		t.Fatalf("single post fetch mismatch: %+v", single)
	}

	if err := c.DeletePost(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	page, err = c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("fetch after delete: %v", err)
	}
	if page.TotalItems != 0 {
		t.Fatalf("expected empty feed after delete, got total %d", page.TotalItems)
	}
}

func TestFeedPaginationNewestFirst(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loggedInClient(t, srv, "maria@example.com")
	ctx := context.Background()

	var lastID string
	for i := 1; i <= 12; i++ {
		post, err := c.CreatePost(ctx, "post", "body", "")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		lastID = post.ID
	}

	page1, err := c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("fetch page 1: %v", err)
	}
	if page1.TotalItems != 12 || len(page1.Posts) != 10 {
		t.Fatalf("expected 10 of 12 posts on page 1, got %d of %d", len(page1.Posts), page1.TotalItems)
	}
	if page1.Posts[0].ID != lastID {
		t.Fatalf("expected the newest post first, got %s", page1.Posts[0].ID)
	}

	page2, err := c.FetchPage(ctx, 2)
	if err != nil {
		t.Fatalf("fetch page 2: %v", err)
	}
	if len(page2.Posts) != 2 {
		t.Fatalf("expected 2 posts on page 2, got %d", len(page2.Posts))
	}
}

func TestCreatePostValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loggedInClient(t, srv, "maria@example.com")

	if _, err := c.CreatePost(context.Background(), "", "body", ""); err == nil {
		t.Fatal("expected error for an empty title")
	}
}

func TestUploadAndReplaceImage(t *testing.T) {
	srv, cfg := newTestServer(t)
	c := loggedInClient(t, srv, "maria@example.com")
	ctx := context.Background()

	first, err := c.UploadImage(ctx, "cat.png", []byte("png-bytes"), "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(first, "uploads/") {
		t.Fatalf("expected a server-relative path, got %q", first)
	}
	firstOnDisk := filepath.Join(cfg.UploadsDir, filepath.Base(first))
	if _, err := os.Stat(firstOnDisk); err != nil {
		t.Fatalf("uploaded file not stored: %v", err)
	}

	// the file is also served back
	resp, err := http.Get(srv.URL + "/" + first)
	if err != nil {
		t.Fatalf("fetch stored image: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "png-bytes" {
		t.Fatalf("served image mismatch: %q", body)
	}

	second, err := c.UploadImage(ctx, "dog.png", []byte("other-bytes"), first)
	if err != nil {
		t.Fatalf("replacement upload: %v", err)
	}
	if second == first {
		t.Fatal("replacement must get a fresh path")
	}
	if _, err := os.Stat(firstOnDisk); !os.IsNotExist(err) {
		t.Fatalf("replaced image must be garbage-collected, stat err: %v", err)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loggedInClient(t, srv, "maria@example.com")
	ctx := context.Background()

	status, err := c.UserStatus(ctx)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != "I am new!" {
		t.Fatalf("expected the default status, got %q", status)
	}

	if err := c.UpdateUserStatus(ctx, "shipping feedsync"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	status, err = c.UserStatus(ctx)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != "shipping feedsync" {
		t.Fatalf("expected the updated status, got %q", status)
	}
}

func dialChannel(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/channel?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial channel: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event wireEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func TestChannelRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/channel"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the dial to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestChannelBroadcastsMutations(t *testing.T) {
	srv, _ := newTestServer(t)
	author := loggedInClient(t, srv, "maria@example.com")
	watcher := loggedInClient(t, srv, "yuri@example.com")
	ctx := context.Background()

	connA := dialChannel(t, srv, author.Token())
	connB := dialChannel(t, srv, watcher.Token())

	created, err := author.CreatePost(ctx, "announced", "to everyone", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		event := readEvent(t, conn)
		if event.Action != string(domain.ActionCreate) || event.Post.ID != created.ID {
			t.Fatalf("expected a create event for %s, got %+v", created.ID, event)
		}
		if event.Post.Creator.Name != "maria" {
			t.Fatalf("expected the creator on the event, got %+v", event.Post)
		}
	}

	if _, err := author.UpdatePost(ctx, created.ID, "revised", "body", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	event := readEvent(t, connB)
	if event.Action != string(domain.ActionUpdate) || event.Post.Title != "revised" {
		t.Fatalf("expected an update event, got %+v", event)
	}

	if err := author.DeletePost(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	event = readEvent(t, connB)
	if event.Action != string(domain.ActionDelete) || event.Post.ID != created.ID {
		t.Fatalf("expected a delete event carrying the id, got %+v", event)
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(`{"email": ""}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "InvalidRequest" {
		t.Fatalf("expected InvalidRequest, got %+v", body)
	}
}
