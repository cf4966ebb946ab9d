// Package sqlite implements the reference backend's post and status storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TheYuriG/feedsync/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the requested post does not exist.
var ErrNotFound = errors.New("post not found")

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	image_url  TEXT NOT NULL,
	creator    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS statuses (
	email  TEXT PRIMARY KEY,
	status TEXT NOT NULL
);`

// Repository stores posts and user statuses in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the SQLite database at path and
// ensures the schema exists. The caller should call Close when done.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (id, title, content, image_url, creator, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		post.ID,
		post.Title,
		post.Content,
		post.ImageURL,
		post.Creator,
		post.CreatedAt,
	)
	return err
}

// GetPost retrieves a post by ID.
func (r *Repository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, content, image_url, creator, created_at
		FROM posts
		WHERE id = ?`, id)

	var post domain.Post
	err := row.Scan(&post.ID, &post.Title, &post.Content, &post.ImageURL, &post.Creator, &post.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost replaces the mutable fields of an existing post and returns the
// stored copy.
func (r *Repository) UpdatePost(ctx context.Context, id, title, content, imageURL string) (*domain.Post, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE posts
		SET title = ?, content = ?, image_url = ?
		WHERE id = ?`, title, content, imageURL, id)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return r.GetPost(ctx, id)
}

// DeletePost removes a post by ID.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPosts retrieves one page of posts, newest first, plus the total count
// across all pages. Post IDs are ULIDs, so lexicographic descending order is
// creation order.
func (r *Repository) ListPosts(ctx context.Context, page, limit int) ([]domain.Post, int, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, content, image_url, creator, created_at
		FROM posts
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(&post.ID, &post.Title, &post.Content, &post.ImageURL, &post.Creator, &post.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// GetStatus retrieves the stored status line for a user, empty when none has
// been set.
func (r *Repository) GetStatus(ctx context.Context, email string) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM statuses WHERE email = ?`, email).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// SetStatus stores the status line for a user.
func (r *Repository) SetStatus(ctx context.Context, email, status string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO statuses (email, status) VALUES (?, ?)
		ON CONFLICT (email) DO UPDATE SET status = excluded.status`, email, status)
	return err
}
