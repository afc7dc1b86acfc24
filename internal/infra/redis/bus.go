package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"livequiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Bus carries session change events over Redis pub/sub so watchers on
// any instance see mutations made by any other. Channel per session:
// session:{sessionID}:events.
type Bus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client, log: slog.Default()}
}

func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(event.SessionID), payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	sub := b.client.Subscribe(ctx, channelFor(sessionID))
	// Confirm the subscription before handing the channel out so no
	// event published after Subscribe returns can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	events := make(chan domain.Event, 16)
	done := make(chan struct{})

	go func() {
		defer close(events)
		src := sub.Channel()
		for {
			select {
			case msg, ok := <-src:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Warn("dropping malformed event", "session", sessionID, "err", err)
					continue
				}
				select {
				case events <- event:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return events, cancel, nil
}

func channelFor(sessionID string) string {
	return "session:" + sessionID + ":events"
}
