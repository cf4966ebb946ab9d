package domain

// Post represents a single feed entry as served by the backend.
type Post struct {
	// ID is the opaque server-assigned identifier. Immutable after creation.
	ID string

	// Title is the post headline.
	Title string

	// Content is the post body text.
	Content string

	// ImageURL is the server-relative reference to the post image.
	ImageURL string

	// ImagePath is ImageURL resolved to an absolute content URL. It is
	// filled in client-side and never sent on the wire.
	ImagePath string

	// Creator is the display name of the post author. Denormalized; the
	// engine holds no ownership relation.
	Creator string

	// CreatedAt is the server-native creation timestamp, display-only.
	CreatedAt string
}

// Page is one page of feed posts plus the total count across all pages.
type Page struct {
	Posts      []Post
	TotalItems int
}

// EventAction identifies the kind of mutation a push event reports.
type EventAction string

const (
	ActionCreate EventAction = "create"
	ActionUpdate EventAction = "update"
	ActionDelete EventAction = "delete"
)

// Event is a single mutation notification delivered over the push channel.
// For delete events only the post ID is meaningful.
type Event struct {
	Action EventAction
	Post   Post
}
