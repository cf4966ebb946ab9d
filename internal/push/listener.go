// Package push maintains the persistent channel that delivers other clients'
// feed mutations to the engine.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TheYuriG/feedsync/internal/domain"
	"github.com/gorilla/websocket"
)

const reconnectDelay = 5 * time.Second

// Listener connects to the push channel and hands each mutation event to the
// handler in arrival order. Delivery is at-most-once best-effort: the
// listener never acknowledges or requests redelivery, and events missed
// while disconnected are simply lost until the next page load.
type Listener struct {
	url     string
	token   string
	handler domain.EventHandler
	logger  *slog.Logger
}

// NewListener creates a push channel listener. url is the websocket endpoint
// and token the bearer credential presented on dial.
func NewListener(url, token string, handler domain.EventHandler, logger *slog.Logger) *Listener {
	return &Listener{
		url:     url,
		token:   token,
		handler: handler,
		logger:  logger,
	}
}

// Start connects to the push channel and processes events until the context
// is cancelled. It automatically reconnects on transient errors.
func (l *Listener) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := l.subscribe(ctx); err != nil {
				l.logger.Error("push channel error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (l *Listener) subscribe(ctx context.Context) error {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}

	l.logger.Info("connecting to push channel", "url", l.url)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, header)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()

	l.logger.Info("connected to push channel")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			l.logger.Error("failed to parse push event", "error", err)
			continue
		}

		l.handler.HandleEvent(ctx, *event)
	}
}

// parseEvent validates a raw channel message and converts it into a domain
// event. Malformed messages are rejected rather than folded with zero values.
func parseEvent(data []byte) (*domain.Event, error) {
	var raw channelEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	action := domain.EventAction(raw.Action)
	switch action {
	case domain.ActionCreate, domain.ActionUpdate:
		if raw.Post.ID == "" || raw.Post.Title == "" {
			return nil, fmt.Errorf("%s event missing post fields", raw.Action)
		}
	case domain.ActionDelete:
		if raw.Post.ID == "" {
			return nil, fmt.Errorf("delete event missing post id")
		}
	default:
		return nil, fmt.Errorf("unknown event action %q", raw.Action)
	}

	return &domain.Event{
		Action: action,
		Post: domain.Post{
			ID:        raw.Post.ID,
			Title:     raw.Post.Title,
			Content:   raw.Post.Content,
			ImageURL:  raw.Post.ImageURL,
			Creator:   raw.Post.Creator.Name,
			CreatedAt: raw.Post.CreatedAt,
		},
	}, nil
}
