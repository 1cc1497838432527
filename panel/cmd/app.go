package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Afeter8/Fed.80/panel/internal/backend"
	"github.com/Afeter8/Fed.80/panel/internal/config"
	"github.com/Afeter8/Fed.80/panel/internal/database"
	"github.com/Afeter8/Fed.80/panel/internal/events"
	"github.com/Afeter8/Fed.80/panel/internal/panel"
	"github.com/Afeter8/Fed.80/panel/internal/transcript"
	"github.com/Afeter8/Fed.80/panel/internal/ui"
	"github.com/Afeter8/Fed.80/pkg/logger"
	natspkg "github.com/Afeter8/Fed.80/pkg/nats"
	"github.com/Afeter8/Fed.80/pkg/redis"
)

// app owns every long-lived dependency of one panel process
type app struct {
	cfg        *config.Config
	transcript *transcript.Transcript
	panel      *panel.Panel
	db         *database.DB
	redis      *redis.Client
	nats       *natspkg.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.RedisEnabled {
		rc, err := redis.NewClient(ctx, redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Enabled:  true,
		})
		if err != nil {
			if cfg.LogStore == config.StoreRedis {
				return nil, err
			}
			logger.Log.Warnf("Redis unavailable, continuing without it: %v", err)
		}
		a.redis = rc
	}

	if cfg.UsesDatabase() {
		db, err := database.New(cfg.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		logger.Log.Infof("Database initialized at %s", cfg.DBPath)
	}

	if cfg.NATSEnabled {
		nc := natspkg.NewClient(natspkg.Config{
			URLs:           cfg.NATSURLs,
			Username:       cfg.NATSUsername,
			Password:       cfg.NATSPassword,
			Token:          cfg.NATSToken,
			TLSEnabled:     cfg.NATSTLS,
			MaxReconnect:   10,
			ReconnectWait:  2 * time.Second,
			ConnectionName: "agent-panel",
			Enabled:        true,
		})
		if err := nc.Connect(); err != nil {
			logger.Log.Warnf("NATS unavailable, events will not be published: %v", err)
		} else {
			a.nats = nc
		}
	}

	a.transcript = transcript.New(cfg.LogMaxEntries)

	store, err := transcript.NewStore(cfg.LogStore, cfg.LogMaxEntries, a.redis, cfg.RedisLogKey, a.db)
	if err != nil {
		a.Close()
		return nil, err
	}
	if store != nil {
		a.transcript.Load(ctx, store)
		a.transcript.AddSink(store)
		logger.Log.Infof("Transcript persisted with %s store", store.Strategy())
	}

	var sinks []panel.SnapshotSink
	if a.nats != nil {
		broadcaster := events.NewBroadcaster(a.nats, cfg.NATSSubjectPrefix)
		a.transcript.AddSink(broadcaster)
		sinks = append(sinks, broadcaster)
	}
	if a.redis != nil {
		sinks = append(sinks, a.redis)
	}
	if a.db != nil && cfg.SnapshotArchive {
		sinks = append(sinks, a.db)
	}

	client := backend.New(cfg.BackendURL, cfg.RequestTimeout, a.transcript)
	a.panel = panel.New(client, ui.NewState(a.transcript), a.transcript, sinks...)

	logger.Log.Infof("Panel ready for backend %s", client.BaseURL())
	return a, nil
}

// Close releases every connection; safe on a partially built app.
func (a *app) Close() {
	if a.nats != nil {
		if err := a.nats.Flush(); err != nil {
			logger.Log.Warnf("Failed to flush NATS: %v", err)
		}
		a.nats.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Log.Warnf("Failed to close Redis: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Log.Warnf("Failed to close database: %v", err)
		}
	}
}
