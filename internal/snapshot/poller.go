package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hitoshi/bannerboard/internal/metrics"
	"github.com/hitoshi/bannerboard/internal/model"
)

// DefaultInterval はストアをポーリングする間隔。
const DefaultInterval = 30 * time.Second

// ErrRefreshInFlight は前回の取得が終わっていないため今回をスキップしたことを表す。
var ErrRefreshInFlight = errors.New("スナップショットの取得が実行中です")

// BannerLister は全バナーを取得順で返す。
type BannerLister interface {
	ListAll(ctx context.Context) ([]model.Banner, error)
}

// HomeSettingsGetter はトップページ設定を返す。
type HomeSettingsGetter interface {
	Get(ctx context.Context) (*model.HomeSettings, error)
}

// Poller はストアを定期的に読み、Stateを更新する。
// 取得中に次のティックが来た場合はキューに積まずスキップする。
// 書き込み後の再取得（RefreshAfterWrite）だけは、実行中の取得が終わった後にもう1回読む。
type Poller struct {
	banners  BannerLister
	settings HomeSettingsGetter
	state    *State
	breaker  *gobreaker.CircuitBreaker
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	inFlight atomic.Bool
	pending  atomic.Bool
	now      func() time.Time
}

// NewPoller はPollerを生成する。
// ストアの読み出しはサーキットブレーカー越しに行い、連続3回失敗すると60秒間は
// 読み出しを行わずに既存のスナップショットを使い続ける。
func NewPoller(
	banners BannerLister,
	settings HomeSettingsGetter,
	state *State,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Poller {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "snapshot-store",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Poller{
		banners:  banners,
		settings: settings,
		state:    state,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Start は起動直後に1回取得し、その後interval間隔で取得を続ける。
// コンテキストがキャンセルされるまで実行を継続する。
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("スナップショットのポーリングを開始しました",
		slog.Duration("interval", interval),
	)

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("スナップショットのポーリングを停止しました")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
		p.logger.Error("スナップショットの取得に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Refresh はストアを1回読み、内容が変わっていればスナップショットを差し替える。
// 差し替えたかどうかを返す。失敗時は既存のスナップショットを保持する。
func (p *Poller) Refresh(ctx context.Context) (bool, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.RecordRefresh(metrics.RefreshSkipped)
		return false, ErrRefreshInFlight
	}

	changed := false
	for {
		p.pending.Store(false)
		c, err := p.refreshOnce(ctx)
		changed = changed || c
		p.inFlight.Store(false)
		if err != nil {
			return changed, err
		}
		// 取得中に書き込み後の再取得を依頼されていれば、もう1回読む
		if !p.pending.Load() || !p.inFlight.CompareAndSwap(false, true) {
			return changed, nil
		}
	}
}

// RefreshAfterWrite は書き込みの直後に呼び、その書き込みをスナップショットに反映させる。
// 取得が実行中の場合はその取得の完了後にもう1回読ませ、自身は待たずに返る。
func (p *Poller) RefreshAfterWrite(ctx context.Context) (bool, error) {
	p.pending.Store(true)
	changed, err := p.Refresh(ctx)
	if errors.Is(err, ErrRefreshInFlight) {
		return false, nil
	}
	return changed, err
}

func (p *Poller) refreshOnce(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() { p.metrics.RecordRefreshLatency(time.Since(start)) }()

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.load(ctx)
	})
	if err != nil {
		p.state.Fail(err)
		p.metrics.RecordRefresh(metrics.RefreshFailure)
		return false, err
	}

	next := result.(*Snapshot)
	changed := p.state.Replace(next)
	p.metrics.RecordRefresh(metrics.RefreshSuccess)
	if changed {
		p.metrics.RecordSnapshotChanged()
		p.logger.Info("スナップショットを更新しました",
			slog.Int("banner_count", len(next.Banners)),
			slog.String("fingerprint", next.Fingerprint[:12]),
		)
	}
	return changed, nil
}

func (p *Poller) load(ctx context.Context) (*Snapshot, error) {
	banners, err := p.banners.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("バナーの読み出しに失敗しました: %w", err)
	}

	settings, err := p.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("トップページ設定の読み出しに失敗しました: %w", err)
	}
	if settings == nil {
		settings = &model.HomeSettings{}
	}

	return New(banners, *settings, p.now())
}
