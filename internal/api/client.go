// Package api implements the HTTP transport adapter for the feed backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/TheYuriG/feedsync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Client talks to the feed backend over HTTP. After Login (or SetToken)
// every call carries the bearer token. Client implements domain.Transport.
type Client struct {
	base       string
	httpClient *http.Client

	// populated after Login
	token string
}

// NewClient creates a feed API client for the given base URL.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the backend base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.base
}

// SetToken installs a previously obtained credential.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current credential. Only valid after Login or SetToken.
func (c *Client) Token() string {
	return c.token
}

// Login authenticates with the backend and stores the session token.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp loginResponse
	if err := c.request(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("login response missing token: %w", domain.ErrRequestFailed)
	}
	c.token = resp.Token
	return nil
}

// FetchPage retrieves one page of posts plus the total item count.
func (c *Client) FetchPage(ctx context.Context, page int) (*domain.Page, error) {
	if err := c.checkToken(); err != nil {
		return nil, err
	}
	var resp feedResponse
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/feed/posts?page=%d", page), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	if resp.TotalItems == nil {
		return nil, fmt.Errorf("feed response missing totalItems: %w", domain.ErrRequestFailed)
	}
	posts := make([]domain.Post, len(resp.Posts))
	for i, p := range resp.Posts {
		post, err := p.toDomain()
		if err != nil {
			return nil, err
		}
		posts[i] = post
	}
	return &domain.Page{Posts: posts, TotalItems: *resp.TotalItems}, nil
}

// FetchPost retrieves a single post by ID.
func (c *Client) FetchPost(ctx context.Context, id string) (*domain.Post, error) {
	if err := c.checkToken(); err != nil {
		return nil, err
	}
	var resp postResponse
	if err := c.request(ctx, http.MethodGet, "/feed/post/"+id, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", id, err)
	}
	post, err := resp.Post.toDomain()
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost stores a new post and returns the canonical server copy.
func (c *Client) CreatePost(ctx context.Context, title, content, imageURL string) (*domain.Post, error) {
	return c.mutatePost(ctx, http.MethodPost, "/feed/post", title, content, imageURL)
}

// UpdatePost replaces an existing post's fields and returns the canonical
// server copy.
func (c *Client) UpdatePost(ctx context.Context, id, title, content, imageURL string) (*domain.Post, error) {
	return c.mutatePost(ctx, http.MethodPut, "/feed/post/"+id, title, content, imageURL)
}

func (c *Client) mutatePost(ctx context.Context, method, path, title, content, imageURL string) (*domain.Post, error) {
	if err := c.checkToken(); err != nil {
		return nil, err
	}
	body := postRequest{
		Title:    title,
		Content:  content,
		ImageURL: imageURL,
	}
	var resp postResponse
	if err := c.request(ctx, method, path, body, &resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	post, err := resp.Post.toDomain()
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post by ID.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	if err := c.request(ctx, http.MethodDelete, "/feed/post/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return nil
}

// UploadImage stores raw image bytes and returns the server-relative file
// path. oldPath, when non-empty, names the stored image this one replaces.
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte, oldPath string) (string, error) {
	if err := c.checkToken(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if oldPath != "" {
		if err := mw.WriteField("oldPath", oldPath); err != nil {
			return "", fmt.Errorf("write oldPath field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/uploads", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	respBody, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal upload response: %w", domain.ErrRequestFailed)
	}
	if resp.FilePath == "" {
		return "", fmt.Errorf("upload response missing filePath: %w", domain.ErrRequestFailed)
	}
	return resp.FilePath, nil
}

// UserStatus retrieves the signed-in user's status line.
func (c *Client) UserStatus(ctx context.Context) (string, error) {
	if err := c.checkToken(); err != nil {
		return "", err
	}
	var resp statusResponse
	if err := c.request(ctx, http.MethodGet, "/auth/status", nil, &resp); err != nil {
		return "", fmt.Errorf("fetch status: %w", err)
	}
	return resp.Status, nil
}

// UpdateUserStatus replaces the signed-in user's status line.
func (c *Client) UpdateUserStatus(ctx context.Context, status string) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	body := statusResponse{Status: status}
	if err := c.request(ctx, http.MethodPut, "/auth/status", body, nil); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// checkToken rejects calls whose bearer token is missing or already expired,
// so an expired credential surfaces as Unauthenticated without a round trip.
// The backend re-verifies either way; tokens that do not parse as JWTs are
// passed through for the server to judge.
func (c *Client) checkToken() error {
	if c.token == "" {
		return fmt.Errorf("missing credential: %w", domain.ErrUnauthenticated)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(time.Now()) {
		return fmt.Errorf("credential expired: %w", domain.ErrUnauthenticated)
	}
	return nil
}

// request issues a JSON request and decodes the response into result when it
// is non-nil.
func (c *Client) request(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	respBody, err := c.send(req)
	if err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", domain.ErrRequestFailed)
		}
	}
	return nil
}

// send performs the HTTP exchange and maps failures onto the engine's error
// taxonomy: 401 wraps ErrUnauthenticated, everything else ErrRequestFailed.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %v: %w", err, domain.ErrRequestFailed)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, domain.ErrRequestFailed)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("server rejected credential: %w", domain.ErrUnauthenticated)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s: %w", resp.StatusCode, string(respBody), domain.ErrRequestFailed)
	}
	return respBody, nil
}
