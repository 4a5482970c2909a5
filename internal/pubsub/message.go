// Package pubsub announces published partition blobs to viewers. Delivery
// is best-effort: messages may be dropped, duplicated or reordered.
package pubsub

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/23skdu/field/internal/core"
)

// Publisher announces notifications.
type Publisher interface {
	Publish(ctx context.Context, n core.Notification) error
}

// Encode renders a notification as its JSON wire form.
func Encode(n core.Notification) ([]byte, error) {
	return json.Marshal(n)
}

// Decode parses and validates one wire message.
func Decode(data []byte) (core.Notification, error) {
	var n core.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return core.Notification{}, fmt.Errorf("pubsub: decode notification: %w", err)
	}
	if !n.Kind.Valid() {
		return core.Notification{}, fmt.Errorf("pubsub: unknown notification kind %q", n.Kind)
	}
	if n.SequenceNumber < 0 {
		return core.Notification{}, fmt.Errorf("pubsub: negative sequence number %d", n.SequenceNumber)
	}
	return n, nil
}

// Channel is the topic a round's notifications are published on.
func Channel(round string) string {
	return "field:" + round + ":notify"
}
