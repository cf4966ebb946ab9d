package api

import (
	"fmt"

	"github.com/TheYuriG/feedsync/internal/domain"
)

// Wire shapes for the feed backend. Responses are validated field by field
// before they reach the engine: a response missing a required field becomes
// a RequestFailed instead of propagating zero values into the page.

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type feedResponse struct {
	Posts      []postPayload `json:"posts"`
	TotalItems *int          `json:"totalItems"`
}

type postResponse struct {
	Post postPayload `json:"post"`
}

type postRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

type uploadResponse struct {
	FilePath string `json:"filePath"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// postPayload is a post as it appears on the wire. The creator is nested the
// way the backend stores it and flattened into the domain model here.
type postPayload struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
	Creator  struct {
		Name string `json:"name"`
	} `json:"creator"`
	CreatedAt string `json:"createdAt"`
}

func (p postPayload) toDomain() (domain.Post, error) {
	if p.ID == "" {
		return domain.Post{}, fmt.Errorf("post payload missing _id: %w", domain.ErrRequestFailed)
	}
	if p.Title == "" {
		return domain.Post{}, fmt.Errorf("post %s payload missing title: %w", p.ID, domain.ErrRequestFailed)
	}
	return domain.Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		Creator:   p.Creator.Name,
		CreatedAt: p.CreatedAt,
	}, nil
}
