package storage

import (
	"context"
	"errors"
	"strings"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// DefaultHistoryLimit caps ListHistory when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// Store is the persistence API used by the schedule service and the HTTP
// front-end. There are no invariants beyond ID uniqueness; Put is an upsert.
type Store interface {
	PutSchedule(ctx context.Context, p ScheduledPost) error
	GetSchedule(ctx context.Context, id string) (ScheduledPost, bool, error)
	DeleteSchedule(ctx context.Context, id string) (bool, error)
	ListSchedules(ctx context.Context) ([]ScheduledPost, error)

	AppendHistory(ctx context.Context, r PublishRecord) error
	ListHistory(ctx context.Context, limit int) ([]PublishRecord, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
