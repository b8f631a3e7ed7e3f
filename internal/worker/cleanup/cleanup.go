// Package cleanup は保持期間を超過したバナーの自動削除ジョブを提供する。
// 明示的な終了日から30日を超えたプロモーションバナーを1回のバッチ削除で消す。
// ニュース記事と終了日のないバナーは対象外。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bannerboard/internal/banner"
	"github.com/hitoshi/bannerboard/internal/metrics"
	"github.com/hitoshi/bannerboard/internal/model"
)

// Store はクリーンアップに必要なバナーの読み出しと一括削除を抽象化する。
// repository.BannerRepositoryが満たす。
type Store interface {
	ListAll(ctx context.Context) ([]model.Banner, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// CleanupJob は保持期間を超過したバナーの自動削除ジョブ。
// 管理者ログイン時、手動実行、workerモードのcronから呼ばれる。
// 削除に失敗したレコードは次回の実行で再び候補になる。
type CleanupJob struct {
	store   Store
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store Store, m metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Run は削除候補を求めて一括削除し、削除したIDを返す。
// 冪等: 候補がない場合は削除を発行せずnilを返す。
func (j *CleanupJob) Run(ctx context.Context) ([]int64, error) {
	start := time.Now()

	banners, err := j.store.ListAll(ctx)
	if err != nil {
		j.logger.Error("クリーンアップ対象の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("クリーンアップ対象の取得に失敗: %w", err)
	}

	ids := banner.CleanupCandidates(banners, banner.DateOf(j.now()))
	if len(ids) == 0 {
		j.logger.Info("クリーンアップ対象のバナーはありません",
			slog.Int("retention_days", banner.RetentionDays),
		)
		return nil, nil
	}

	deleted, err := j.store.DeleteByIDs(ctx, ids)
	if err != nil {
		j.logger.Error("バナーの自動削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("candidate_count", len(ids)),
		)
		return nil, fmt.Errorf("バナーの自動削除に失敗: %w", err)
	}

	j.metrics.RecordCleanupDeleted(int(deleted))
	j.logger.Info("バナーの自動削除が完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Any("ids", ids),
		slog.Int("retention_days", banner.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return ids, nil
}
