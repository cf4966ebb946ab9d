package push

// channelEvent is the raw JSON structure delivered over the push channel.
type channelEvent struct {
	Action string      `json:"action"`
	Post   channelPost `json:"post"`
}

// channelPost is a post as it appears in a push event. Delete events carry
// only the _id.
type channelPost struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
	Creator  struct {
		Name string `json:"name"`
	} `json:"creator"`
	CreatedAt string `json:"createdAt"`
}
