// Package devserver is a reference backend implementing the transport
// contract the feed client depends on, backed by SQLite and broadcasting
// every mutation over the push channel. It exists for local development and
// integration tests, not production use.
package devserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/TheYuriG/feedsync/internal/config"
	"github.com/TheYuriG/feedsync/internal/domain"
	"github.com/TheYuriG/feedsync/internal/sqlite"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// defaultStatus is the status line reported for users who never set one.
const defaultStatus = "I am new!"

// wirePost is a post as served on the wire, creator nested.
type wirePost struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
	Creator  struct {
		Name string `json:"name"`
	} `json:"creator"`
	CreatedAt string `json:"createdAt"`
}

// wireEvent is a push channel message.
type wireEvent struct {
	Action string   `json:"action"`
	Post   wirePost `json:"post"`
}

func toWire(post domain.Post) wirePost {
	w := wirePost{
		ID:        post.ID,
		Title:     post.Title,
		Content:   post.Content,
		ImageURL:  post.ImageURL,
		CreatedAt: post.CreatedAt,
	}
	w.Creator.Name = post.Creator
	return w
}

// Server is the reference backend HTTP server.
type Server struct {
	cfg        *config.Server
	repo       *sqlite.Repository
	hub        *Hub
	issuer     tokenIssuer
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates the reference backend bound to a repository.
func NewServer(cfg *config.Server, repo *sqlite.Repository, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		repo:   repo,
		hub:    NewHub(logger),
		issuer: tokenIssuer{secret: []byte(cfg.TokenSecret)},
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the full route table, usable directly in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/status", s.requireAuth(s.handleGetStatus))
	mux.HandleFunc("PUT /auth/status", s.requireAuth(s.handleSetStatus))
	mux.HandleFunc("GET /feed/posts", s.requireAuth(s.handleListPosts))
	mux.HandleFunc("POST /feed/post", s.requireAuth(s.handleCreatePost))
	mux.HandleFunc("GET /feed/post/{id}", s.requireAuth(s.handleGetPost))
	mux.HandleFunc("PUT /feed/post/{id}", s.requireAuth(s.handleUpdatePost))
	mux.HandleFunc("DELETE /feed/post/{id}", s.requireAuth(s.handleDeletePost))
	mux.HandleFunc("PUT /uploads", s.requireAuth(s.handleUpload))
	mux.HandleFunc("GET /uploads/{file}", s.handleServeUpload)
	mux.HandleFunc("GET /channel", s.handleChannel)
	mux.HandleFunc("GET /health", s.handleHealth)
	return withLogging(s.logger, mux)
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting reference backend", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// identity is the authenticated caller, attached to the request context.
type identity struct {
	email string
	name  string
}

type contextKey struct{}

// requireAuth rejects requests without a valid bearer token and attaches the
// caller's identity to the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "NotAuthenticated", "missing bearer token")
			return
		}
		email, name, err := s.issuer.verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "NotAuthenticated", "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKey{}, identity{email: email, name: name})
		next(w, r.WithContext(ctx))
	}
}

func callerIdentity(r *http.Request) identity {
	id, _ := r.Context().Value(contextKey{}).(identity)
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):], true
	}
	// websocket clients may pass the token as a query parameter
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "InvalidRequest", "email and password are required")
		return
	}

	token, err := s.issuer.issue(body.Email, displayName(body.Email))
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"userId": body.Email,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	status, err := s.repo.GetStatus(r.Context(), id.email)
	if err != nil {
		s.logger.Error("failed to load status", "user", id.email, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load status")
		return
	}
	if status == "" {
		status = defaultStatus
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "InvalidRequest", "status is required")
		return
	}
	if err := s.repo.SetStatus(r.Context(), id.email, body.Status); err != nil {
		s.logger.Error("failed to store status", "user", id.email, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to store status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "page must be a positive integer")
			return
		}
		page = parsed
	}

	posts, total, err := s.repo.ListPosts(r.Context(), page, s.cfg.PageSize)
	if err != nil {
		s.logger.Error("failed to list posts", "page", page, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list posts")
		return
	}

	wire := make([]wirePost, len(posts))
	for i, p := range posts {
		wire[i] = toWire(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":      wire,
		"totalItems": total,
	})
}

type postBody struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	var body postBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" || body.Content == "" {
		writeError(w, http.StatusUnprocessableEntity, "InvalidRequest", "title and content are required")
		return
	}

	post := domain.Post{
		ID:        ulid.Make().String(),
		Title:     body.Title,
		Content:   body.Content,
		ImageURL:  body.ImageURL,
		Creator:   id.name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.repo.CreatePost(r.Context(), &post); err != nil {
		s.logger.Error("failed to create post", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to create post")
		return
	}

	s.hub.Broadcast(wireEvent{Action: string(domain.ActionCreate), Post: toWire(post)})
	writeJSON(w, http.StatusCreated, map[string]any{"post": toWire(post)})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.repo.GetPost(r.Context(), r.PathValue("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load post", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": toWire(*post)})
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var body postBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" || body.Content == "" {
		writeError(w, http.StatusUnprocessableEntity, "InvalidRequest", "title and content are required")
		return
	}

	post, err := s.repo.UpdatePost(r.Context(), r.PathValue("id"), body.Title, body.Content, body.ImageURL)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update post", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to update post")
		return
	}

	s.hub.Broadcast(wireEvent{Action: string(domain.ActionUpdate), Post: toWire(*post)})
	writeJSON(w, http.StatusOK, map[string]any{"post": toWire(*post)})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	err := s.repo.DeletePost(r.Context(), postID)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete post", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to delete post")
		return
	}

	s.hub.Broadcast(wireEvent{Action: string(domain.ActionDelete), Post: wirePost{ID: postID}})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted post."})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "InvalidRequest", "multipart form expected")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "InvalidRequest", "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("failed to read upload", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read upload")
		return
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		s.logger.Error("failed to create uploads dir", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to store upload")
		return
	}

	name := ulid.Make().String() + filepath.Ext(header.Filename)
	if err := os.WriteFile(filepath.Join(s.cfg.UploadsDir, name), data, 0o644); err != nil {
		s.logger.Error("failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to store upload")
		return
	}

	// A replaced image is garbage-collected right away. Only the base name is
	// honored so a client cannot point oldPath outside the uploads dir.
	if oldPath := r.FormValue("oldPath"); oldPath != "" {
		old := filepath.Join(s.cfg.UploadsDir, path.Base(oldPath))
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove replaced image", "path", old, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"filePath": "uploads/" + name})
}

func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.PathValue("file"))
	http.ServeFile(w, r, filepath.Join(s.cfg.UploadsDir, name))
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "NotAuthenticated", "missing bearer token")
		return
	}
	if _, _, err := s.issuer.verify(token); err != nil {
		writeError(w, http.StatusUnauthorized, "NotAuthenticated", "invalid or expired token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Add(conn)

	// The channel is server-to-client only; the read loop exists to notice
	// the close.
	go func() {
		defer s.hub.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection through the
// logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
