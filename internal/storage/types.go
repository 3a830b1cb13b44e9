package storage

import (
	"errors"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ScheduledPost is one stored publish job. Either Cron (recurring) or RunAt
// (one-shot) is set, never both.
type ScheduledPost struct {
	ID      string                  `json:"id"`
	Payload dispatch.PublishPayload `json:"payload"`

	Cron  string     `json:"cron,omitempty"`
	RunAt *time.Time `json:"run_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Runs      int        `json:"runs"`
}

// PublishRecord is one fan-out's result kept as history.
// Keep it compact and schema-stable.
type PublishRecord struct {
	ID         string                `json:"id"`
	ScheduleID string                `json:"schedule_id,omitempty"`
	Content    string                `json:"content"`
	Result     dispatch.FanOutResult `json:"result"`
	At         time.Time             `json:"at"`
}
