package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/bannerboard/internal/model"
)

type mockStore struct {
	banners     []model.Banner
	listErr     error
	deleteErr   error
	deleteCalls int
	deletedIDs  []int64
}

func (m *mockStore) ListAll(ctx context.Context) ([]model.Banner, error) {
	return m.banners, m.listErr
}

func (m *mockStore) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	m.deleteCalls++
	m.deletedIDs = ids
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return int64(len(ids)), nil
}

type mockMetrics struct {
	deleted int
}

func (m *mockMetrics) RecordRefresh(string) {}
func (m *mockMetrics) RecordRefreshLatency(time.Duration) {}
func (m *mockMetrics) RecordSnapshotChanged() {}
func (m *mockMetrics) RecordCleanupDeleted(count int) { m.deleted += count }
func (m *mockMetrics) RecordDownloadAttempt() {}
func (m *mockMetrics) RecordDownloadResult(bool, int) {}
func (m *mockMetrics) RecordUpstreamStatus(int) {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// 2024-04-20を「今日」とするジョブを生成する
func newTestJob(store *mockStore, m *mockMetrics, buf *bytes.Buffer) *CleanupJob {
	job := NewCleanupJob(store, m, newTestLogger(buf))
	job.now = func() time.Time { return time.Date(2024, 4, 20, 15, 0, 0, 0, time.UTC) }
	return job
}

func TestNewCleanupJob_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	if job := NewCleanupJob(&mockStore{}, &mockMetrics{}, newTestLogger(&buf)); job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
}

func TestCleanupJob_Run_DeletesOnlyCandidatesInOneBatch(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{banners: []model.Banner{
		{ID: 1, NationKey: "jp", StartDate: "01/01/2024", EndDate: "10/03/2024"}, // 41日経過
		{ID: 2, NationKey: "jp", StartDate: "01/01/2024"},                        // 終了日なし
		{ID: 3, NationKey: "news", StartDate: "01/01/2023", EndDate: "01/02/2023"},
		{ID: 4, NationKey: "jp", StartDate: "01/03/2024", EndDate: "21/03/2024"}, // ちょうど30日
		{ID: 5, NationKey: "fr", EndDate: "not a date"},
		{ID: 6, NationKey: "fr", EndDate: "2024-01-31"},
	}}
	m := &mockMetrics{}
	job := newTestJob(store, m, &buf)

	ids, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	want := []int64{1, 6}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("削除ID (-want +got):\n%s", diff)
	}
	if store.deleteCalls != 1 {
		t.Errorf("DeleteByIDs 呼び出し回数 = %d, want 1", store.deleteCalls)
	}
	if diff := cmp.Diff(want, store.deletedIDs); diff != "" {
		t.Errorf("DeleteByIDs 引数 (-want +got):\n%s", diff)
	}
	if m.deleted != 2 {
		t.Errorf("メトリクスの削除件数 = %d, want 2", m.deleted)
	}
}

func TestCleanupJob_Run_NoCandidatesSkipsDelete(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{banners: []model.Banner{
		{ID: 1, NationKey: "jp", StartDate: "15/04/2024"},
	}}
	job := newTestJob(store, &mockMetrics{}, &buf)

	ids, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
	if store.deleteCalls != 0 {
		t.Error("候補がない場合に DeleteByIDs を呼んではならない")
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{banners: []model.Banner{
		{ID: 9, NationKey: "jp", EndDate: "01/01/2024"},
	}}
	job := newTestJob(store, &mockMetrics{}, &buf)

	_, _ = job.Run(context.Background())

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["deleted_count"] == float64(1) && entry["retention_days"] == float64(30) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに deleted_count=1, retention_days=30 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnListFailure(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{listErr: sql.ErrConnDone}
	job := newTestJob(store, &mockMetrics{}, &buf)

	_, err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want wrapped sql.ErrConnDone", err)
	}
	if store.deleteCalls != 0 {
		t.Error("取得失敗時に削除してはならない")
	}
}

func TestCleanupJob_Run_DeleteFailureLeavesRecordsForNextPass(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{
		banners:   []model.Banner{{ID: 1, NationKey: "jp", EndDate: "01/01/2024"}},
		deleteErr: sql.ErrConnDone,
	}
	m := &mockMetrics{}
	job := newTestJob(store, m, &buf)

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("削除失敗時はエラーを返すべき")
	}
	if m.deleted != 0 {
		t.Errorf("失敗時にメトリクスを加算してはならない: %d", m.deleted)
	}

	// 次回の実行では同じIDが再び候補になる
	store.deleteErr = nil
	ids, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
	if diff := cmp.Diff([]int64{1}, ids); diff != "" {
		t.Errorf("2回目の削除ID (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "バナーの自動削除に失敗しました") {
		t.Error("削除失敗がログに記録されていない")
	}
}
