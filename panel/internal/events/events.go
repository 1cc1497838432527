// Package events broadcasts panel activity over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/google/uuid"
)

const (
	TypeLog    = "log"
	TypeStatus = "status"
)

// Publisher is the part of the NATS client the broadcaster needs
type Publisher interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
}

// Event is the envelope published on every subject
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Broadcaster publishes transcript entries on <prefix>.log and status
// snapshots on <prefix>.status.
type Broadcaster struct {
	pub    Publisher
	prefix string
}

func NewBroadcaster(pub Publisher, prefix string) *Broadcaster {
	if prefix == "" {
		prefix = "panel"
	}
	return &Broadcaster{pub: pub, prefix: prefix}
}

func (b *Broadcaster) Subject(eventType string) string {
	return b.prefix + "." + eventType
}

// Write implements transcript.Sink
func (b *Broadcaster) Write(ctx context.Context, entry models.LogEntry) error {
	return b.publish(ctx, TypeLog, entry)
}

// SaveSnapshot implements panel.SnapshotSink
func (b *Broadcaster) SaveSnapshot(ctx context.Context, snapshot models.StatusSnapshot) error {
	return b.publish(ctx, TypeStatus, snapshot)
}

func (b *Broadcaster) publish(ctx context.Context, eventType string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.pub.IsConnected() {
		logger.Log.Debugf("NATS not connected, dropping %s event", eventType)
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := b.Subject(eventType)
	if err := b.pub.Publish(subject, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
