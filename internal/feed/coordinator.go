package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TheYuriG/feedsync/internal/domain"
)

// Intent carries the fields of a requested create or update. Image is
// optional; when present it is uploaded before the content mutation. Callers
// validate title and content at the input boundary, the coordinator trusts
// well-formed intents.
type Intent struct {
	Title     string
	Content   string
	ImageName string
	Image     []byte
}

// Coordinator sequences a single in-flight content mutation end to end. It
// owns no state of its own: the store's pending-edit exclusivity is what
// enforces at most one concurrent submit.
type Coordinator struct {
	store     *Store
	transport domain.Transport
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator bound to a store and its transport.
func NewCoordinator(store *Store, transport domain.Transport, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		transport: transport,
		logger:    logger,
	}
}

// BeginCreate opens the edit surface for a new post. No-op when an edit is
// already in progress.
func (c *Coordinator) BeginCreate() {
	if !c.store.BeginCreate() {
		c.logger.Debug("ignoring new post request, edit already in progress")
	}
}

// BeginEdit opens the edit surface for an existing post. No-op when an edit
// is already in progress.
func (c *Coordinator) BeginEdit(postID string) {
	if !c.store.BeginEdit(postID) {
		c.logger.Debug("ignoring edit request", "post", postID)
	}
}

// Cancel closes the edit surface without submitting.
func (c *Coordinator) Cancel() {
	c.store.CancelEdit()
}

// Submit runs the pending create or update: upload the image first when one
// is attached (forwarding the prior image reference on edits so the backend
// may garbage-collect it), then issue the content mutation, then fold the
// canonical server post into the store and clear the pending edit. On
// failure at either step the pending edit is cleared and the error surfaced;
// an already-uploaded image is not rolled back.
func (c *Coordinator) Submit(ctx context.Context, intent Intent) error {
	prior, active := c.store.Editing()
	if !active {
		return fmt.Errorf("submit: no edit in progress")
	}

	editing := prior != nil
	fallback := "Post creation failed!"
	if editing {
		fallback = "Post update failed!"
	}

	imageURL := ""
	if editing {
		imageURL = prior.ImageURL
	}
	if len(intent.Image) > 0 {
		oldPath := ""
		if editing {
			oldPath = prior.ImagePath
		}
		uploaded, err := c.transport.UploadImage(ctx, intent.ImageName, intent.Image, oldPath)
		if err != nil {
			c.logger.Error("image upload failed", "error", err)
			c.store.editFailed(err, fallback)
			return err
		}
		imageURL = uploaded
	}

	var (
		post *domain.Post
		err  error
	)
	if editing {
		post, err = c.transport.UpdatePost(ctx, prior.ID, intent.Title, intent.Content, imageURL)
	} else {
		post, err = c.transport.CreatePost(ctx, intent.Title, intent.Content, imageURL)
	}
	if err != nil {
		c.logger.Error("post mutation failed", "editing", editing, "error", err)
		c.store.editFailed(err, fallback)
		return err
	}

	if editing {
		c.store.ApplyUpdated(*post)
	} else {
		c.store.ApplyCreated(*post)
	}
	c.store.finishEdit()
	return nil
}

// DeletePost issues a delete and reloads the page once the server confirms.
// Deletion is confirmed-then-applied: on failure the page is untouched, so a
// failed delete stays visible instead of silently disappearing.
func (c *Coordinator) DeletePost(ctx context.Context, postID string) error {
	c.store.beginDelete()
	if err := c.transport.DeletePost(ctx, postID); err != nil {
		c.logger.Error("post delete failed", "post", postID, "error", err)
		c.store.deleteFailed(err)
		return err
	}
	c.store.ApplyDeleted(ctx)
	return nil
}
