package transcript

import (
	"context"
	"fmt"

	"github.com/Afeter8/Fed.80/panel/internal/config"
	"github.com/Afeter8/Fed.80/panel/internal/database"
	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/Afeter8/Fed.80/pkg/redis"
)

// Store persists the transcript and replays it on startup
type Store interface {
	Sink
	History
	Strategy() string
}

// NewStore picks the persistence strategy. MEMORY returns a nil Store: the
// in-process transcript is all there is.
func NewStore(strategy string, max int, redisClient *redis.Client, redisKey string, db *database.DB) (Store, error) {
	switch strategy {
	case config.StoreMemory:
		return nil, nil
	case config.StoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("log store %s needs a Redis connection", strategy)
		}
		return &RedisStore{client: redisClient, key: redisKey, max: max}, nil
	case config.StoreSQLite:
		if db == nil {
			return nil, fmt.Errorf("log store %s needs a database", strategy)
		}
		return &SQLiteStore{db: db, max: max}, nil
	default:
		return nil, fmt.Errorf("unsupported log store: %s", strategy)
	}
}

// RedisStore keeps the transcript as a capped Redis list, newest at the head
type RedisStore struct {
	client *redis.Client
	key    string
	max    int
}

func (s *RedisStore) Write(ctx context.Context, entry models.LogEntry) error {
	return s.client.PushLog(ctx, s.key, entry, s.max)
}

func (s *RedisStore) Recent(ctx context.Context, n int) ([]models.LogEntry, error) {
	return s.client.RecentLogs(ctx, s.key, n)
}

func (s *RedisStore) Strategy() string { return config.StoreRedis }

// SQLiteStore keeps the transcript in the log_entries table
type SQLiteStore struct {
	db  *database.DB
	max int
}

func (s *SQLiteStore) Write(ctx context.Context, entry models.LogEntry) error {
	if err := s.db.InsertLogEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	removed, err := s.db.PruneLogEntries(ctx, s.max)
	if err != nil {
		return fmt.Errorf("failed to prune log entries: %w", err)
	}
	if removed > 0 {
		logger.Log.Debugf("Pruned %d transcript entries", removed)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]models.LogEntry, error) {
	return s.db.RecentLogEntries(ctx, n)
}

func (s *SQLiteStore) Strategy() string { return config.StoreSQLite }
