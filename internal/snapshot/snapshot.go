// Package snapshot はバナーとトップページ設定のプロセス全体で共有する状態を管理する。
//
// Pollerが一定間隔でストアを読み、内容のフィンガープリントが変わったときだけ
// Stateのスナップショットを丸ごと差し替える。読み手はCurrentで得た不変の
// *Snapshotを使うため、ロックを保持したまま処理する必要はない。
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/bannerboard/internal/model"
)

// Snapshot はある時点のストアの内容。生成後は変更しない。
type Snapshot struct {
	// Banners は取得順（id順）の全レコード。
	Banners []model.Banner
	// ByNation はnation_keyごとに取得順を保ってグループ化したもの。
	ByNation     map[string][]model.Banner
	HomeSettings model.HomeSettings
	Fingerprint  string
	FetchedAt    time.Time
}

// New はレコードと設定からSnapshotを組み立て、フィンガープリントを計算する。
func New(banners []model.Banner, settings model.HomeSettings, fetchedAt time.Time) (*Snapshot, error) {
	byNation := make(map[string][]model.Banner)
	for _, b := range banners {
		byNation[b.NationKey] = append(byNation[b.NationKey], b)
	}

	fp, err := fingerprint(byNation, settings)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Banners:      banners,
		ByNation:     byNation,
		HomeSettings: settings,
		Fingerprint:  fp,
		FetchedAt:    fetchedAt,
	}, nil
}

// Nation は指定nationのレコードを取得順で返す。
func (s *Snapshot) Nation(key string) []model.Banner {
	return s.ByNation[key]
}

// News はニュース記事を取得順で返す。
func (s *Snapshot) News() []model.Banner {
	return s.ByNation[model.NewsNationKey]
}

// fingerprint はグループ化済みレコードと設定の正規化JSONのSHA-256を返す。
// mapのキーはencoding/jsonがソートするため、同じ内容なら同じ値になる。
func fingerprint(byNation map[string][]model.Banner, settings model.HomeSettings) (string, error) {
	payload := struct {
		Banners  map[string][]model.Banner
		Settings model.HomeSettings
	}{byNation, settings}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("スナップショットのシリアライズに失敗しました: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// State は現在のスナップショットと直近の取得エラーを保持する。
type State struct {
	mu        sync.RWMutex
	current   *Snapshot
	lastError error
}

// NewState は空のStateを生成する。初回取得が成功するまでCurrentはnilを返す。
func NewState() *State {
	return &State{}
}

// Current は現在のスナップショットを返す。未取得ならnil。
func (s *State) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Loaded は一度でも取得に成功したかを返す。
func (s *State) Loaded() bool {
	return s.Current() != nil
}

// LastError は直近の取得エラーを返す。直近が成功ならnil。
func (s *State) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Replace はフィンガープリントが異なる場合だけスナップショットを差し替え、
// 差し替えたかを返す。いずれの場合もエラー状態はクリアする。
func (s *State) Replace(next *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = nil
	if s.current != nil && s.current.Fingerprint == next.Fingerprint {
		return false
	}
	s.current = next
	return true
}

// Fail は取得エラーを記録する。既存のスナップショットは保持する。
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}
