package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.history.jsonl            (append-only JSON Lines)
//   - <prefix>.schedules.snapshot.json  (periodic snapshot)
//   - <prefix>.schedules.journal.jsonl  (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	historyFile *os.File
	historyPath string

	schedSnapshotPath string
	schedJournalFile  *os.File
	schedules         map[string]ScheduledPost

	schedWrites int
}

// journalRecord is one schedule mutation. Delete entries carry only the ID.
type journalRecord struct {
	Op   string         `json:"op"` // "put" | "del"
	ID   string         `json:"id"`
	Post *ScheduledPost `json:"post,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	historyPath := prefix + ".history.jsonl"
	snapPath := prefix + ".schedules.snapshot.json"
	journalPath := prefix + ".schedules.journal.jsonl"

	hf, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load schedules from snapshot + journal.
	schedules := map[string]ScheduledPost{}
	_ = loadScheduleSnapshot(snapPath, schedules)
	_ = replayScheduleJournal(journalPath, schedules)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = hf.Close()
		return nil, err
	}

	return &fileStore{
		log:               log,
		historyFile:       hf,
		historyPath:       historyPath,
		schedSnapshotPath: snapPath,
		schedJournalFile:  jf,
		schedules:         schedules,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.historyFile != nil {
		err1 = s.historyFile.Close()
		s.historyFile = nil
	}
	if s.schedJournalFile != nil {
		err2 = s.schedJournalFile.Close()
		s.schedJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) PutSchedule(ctx context.Context, p ScheduledPost) error {
	_ = ctx
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("schedule id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedJournalFile == nil {
		return errors.New("schedule journal closed")
	}
	s.schedules[p.ID] = p
	return s.appendJournalLocked(journalRecord{Op: "put", ID: p.ID, Post: &p})
}

func (s *fileStore) GetSchedule(ctx context.Context, id string) (ScheduledPost, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.schedules[id]
	return p, ok, nil
}

func (s *fileStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedJournalFile == nil {
		return false, errors.New("schedule journal closed")
	}
	if _, ok := s.schedules[id]; !ok {
		return false, nil
	}
	delete(s.schedules, id)
	return true, s.appendJournalLocked(journalRecord{Op: "del", ID: id})
}

func (s *fileStore) ListSchedules(ctx context.Context) ([]ScheduledPost, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]ScheduledPost, 0, len(s.schedules))
	for _, p := range s.schedules {
		out = append(out, p)
	}
	s.mu.Unlock()
	sortSchedules(out)
	return out, nil
}

func (s *fileStore) AppendHistory(ctx context.Context, r PublishRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.historyFile).Encode(r)
}

func (s *fileStore) ListHistory(ctx context.Context, limit int) ([]PublishRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.Lock()
	path := s.historyPath
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []PublishRecord{}, nil
		}
		return nil, err
	}
	defer f.Close()

	// The history file is append-only, so a single scan keeping the last
	// `limit` entries is enough.
	ring := make([]PublishRecord, 0, limit)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r PublishRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if len(ring) == limit {
			copy(ring, ring[1:])
			ring = ring[:limit-1]
		}
		ring = append(ring, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
	return ring, nil
}

func (s *fileStore) appendJournalLocked(rec journalRecord) error {
	if err := json.NewEncoder(s.schedJournalFile).Encode(rec); err != nil {
		return err
	}
	s.schedWrites++
	if s.schedWrites%64 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("schedule compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.schedSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.schedules); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.schedSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.schedJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.schedJournalFile.Seek(0, 2)
	return err
}

func loadScheduleSnapshot(path string, out map[string]ScheduledPost) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]ScheduledPost
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayScheduleJournal(path string, out map[string]ScheduledPost) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		switch rec.Op {
		case "put":
			if rec.Post != nil && rec.ID != "" {
				out[rec.ID] = *rec.Post
			}
		case "del":
			delete(out, rec.ID)
		}
	}
	return sc.Err()
}

// sortSchedules orders by creation time, oldest first; ties break on ID so
// listings are stable.
func sortSchedules(posts []ScheduledPost) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
}
