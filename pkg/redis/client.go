package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	StatusChannel   = "panel:status"
	LatestStatusKey = "panel:latest_status"
	DefaultLogKey   = "panel:log"

	latestStatusTTL = 24 * time.Hour
)

// Client wraps the Redis connection used for the transcript list and snapshot fan-out
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration
type Config struct {
	Address  string
	Password string
	DB       int
	Enabled  bool
}

// StatusMessage is what gets published on StatusChannel and stored under LatestStatusKey
type StatusMessage struct {
	Snapshot  models.StatusSnapshot `json:"snapshot"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewClient connects to Redis. A disabled config yields a nil client, which every
// method treats as a no-op.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if !config.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            config.Address,
		Password:        config.Password,
		DB:              config.DB,
		DisableIdentity: true,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.Address, err)
	}

	logger.Log.Infof("Connected to Redis at %s", config.Address)
	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// IsConnected checks if Redis answers a ping
func (c *Client) IsConnected(ctx context.Context) bool {
	if c == nil {
		return false
	}
	return c.rdb.Ping(ctx).Err() == nil
}

// PushLog prepends entry to the list at key and trims it to max entries.
func (c *Client) PushLog(ctx context.Context, key string, entry models.LogEntry, max int) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	if max > 0 {
		pipe.LTrim(ctx, key, 0, int64(max-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push log entry: %w", err)
	}
	return nil
}

// RecentLogs returns up to n entries from key, newest first. Undecodable items are skipped.
func (c *Client) RecentLogs(ctx context.Context, key string, n int) ([]models.LogEntry, error) {
	if c == nil || n <= 0 {
		return nil, nil
	}

	items, err := c.rdb.LRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log entries: %w", err)
	}

	entries := make([]models.LogEntry, 0, len(items))
	for _, item := range items {
		var entry models.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			logger.Log.Warnf("Skipping malformed log entry in %s: %v", key, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SaveSnapshot stores snapshot as the latest status and publishes it on StatusChannel.
func (c *Client) SaveSnapshot(ctx context.Context, snapshot models.StatusSnapshot) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(StatusMessage{Snapshot: snapshot, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}

	if err := c.rdb.Set(ctx, LatestStatusKey, data, latestStatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store latest status: %w", err)
	}

	if err := c.rdb.Publish(ctx, StatusChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}

	logger.Log.Debugf("Published status snapshot to Redis channel: %s", StatusChannel)
	return nil
}

// LatestSnapshot returns the last stored status, or nil when none is stored.
func (c *Client) LatestSnapshot(ctx context.Context) (*StatusMessage, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.rdb.Get(ctx, LatestStatusKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var msg StatusMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
