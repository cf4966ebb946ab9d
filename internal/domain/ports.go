package domain

import "context"

// Transport performs the authenticated backend calls the engine depends on.
// Implementations must return errors that wrap ErrUnauthenticated when the
// credential is rejected and ErrRequestFailed for every other failure,
// including responses that do not match the expected shape.
type Transport interface {
	// FetchPage retrieves one page of posts, newest first, plus the total
	// item count across all pages.
	FetchPage(ctx context.Context, page int) (*Page, error)

	// FetchPost retrieves a single post by ID.
	FetchPost(ctx context.Context, id string) (*Post, error)

	// CreatePost stores a new post and returns the canonical server copy.
	CreatePost(ctx context.Context, title, content, imageURL string) (*Post, error)

	// UpdatePost replaces the titled fields of an existing post and returns
	// the canonical server copy.
	UpdatePost(ctx context.Context, id, title, content, imageURL string) (*Post, error)

	// DeletePost removes a post by ID.
	DeletePost(ctx context.Context, id string) error

	// UploadImage stores raw image bytes and returns the server-relative
	// reference. A non-empty oldPath tells the backend which previously
	// stored image this upload replaces, so it may be garbage-collected.
	UploadImage(ctx context.Context, filename string, data []byte, oldPath string) (string, error)

	// UserStatus retrieves the signed-in user's status line.
	UserStatus(ctx context.Context) (string, error)

	// UpdateUserStatus replaces the signed-in user's status line.
	UpdateUserStatus(ctx context.Context, status string) error
}

// EventHandler folds push events into local state. Implementations are called
// in event arrival order, one event at a time.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event)
}
