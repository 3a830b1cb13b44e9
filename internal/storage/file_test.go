package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

func testPost(id string, created time.Time) ScheduledPost {
	return ScheduledPost{
		ID:        id,
		Payload:   dispatch.PublishPayload{Content: "post " + id, Hashtags: []string{"launch"}},
		Cron:      "@daily",
		CreatedAt: created,
	}
}

func openTestFileStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "agent_store")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return st
}

func TestFileStoreScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestFileStore(t, dir)
	defer st.Close()

	base := time.Now().Truncate(time.Millisecond)
	if err := st.PutSchedule(ctx, testPost("b", base.Add(time.Second))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutSchedule(ctx, testPost("a", base)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := st.GetSchedule(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if got.Payload.Content != "post a" || got.Cron != "@daily" {
		t.Fatalf("unexpected schedule: %+v", got)
	}

	list, err := st.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("list order = %+v", list)
	}

	ok, err = st.DeleteSchedule(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	ok, err = st.DeleteSchedule(ctx, "a")
	if err != nil || ok {
		t.Fatalf("second delete must report false, got %v, %v", ok, err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	st := openTestFileStore(t, dir)
	if err := st.PutSchedule(ctx, testPost("keep", time.Now())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutSchedule(ctx, testPost("drop", time.Now())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := st.DeleteSchedule(ctx, "drop"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2 := openTestFileStore(t, dir)
	defer st2.Close()
	list, err := st2.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "keep" {
		t.Fatalf("journal replay produced %+v", list)
	}
}

func TestFileStoreHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestFileStore(t, t.TempDir())
	defer st.Close()

	for i := 0; i < 5; i++ {
		rec := PublishRecord{
			ID:      string(rune('a' + i)),
			Content: "hello",
			Result:  dispatch.FanOutResult{Success: i%2 == 0},
		}
		if err := st.AppendHistory(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := st.ListHistory(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limit ignored: %d records", len(got))
	}
	// Newest first.
	if got[0].ID != "e" || got[2].ID != "c" {
		t.Fatalf("order = %s..%s, want e..c", got[0].ID, got[2].ID)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled storage should be (nil, nil), got %v, %v", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("driver none should be (nil, nil), got %v, %v", st, err)
	}
}
