// Package admin は管理画面の操作（認証、バナー・トップページ設定・管理者の更新、自動削除）を提供する。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bannerboard/internal/banner"
	"github.com/hitoshi/bannerboard/internal/model"
	"github.com/hitoshi/bannerboard/internal/repository"
	"github.com/hitoshi/bannerboard/internal/security"
)

const (
	// MinKeyLength はアクセスキーの最小文字数。
	MinKeyLength = 8
	// maxKeyBytes はbcryptが扱えるキーの最大バイト数。
	maxKeyBytes = 72
)

// Cleaner は保持期間を超過したバナーを削除し、削除したIDを返す。
type Cleaner interface {
	Run(ctx context.Context) ([]int64, error)
}

// Refresher は更新後にスナップショットを取り直す。
type Refresher interface {
	RefreshAfterWrite(ctx context.Context) (bool, error)
}

// BannerFilter は管理画面の一覧の絞り込み条件。
// From/Toは開始日の範囲で、ParseDateが解釈できる任意の形式を受け付ける。
type BannerFilter struct {
	NationKey string
	From      string
	To        string
}

// LoginResult はログイン結果。
type LoginResult struct {
	User *model.AdminUser
	// CleanedIDs はログイン時の自動削除で消したバナーのID。
	CleanedIDs []int64
}

// Service は管理画面のサービス層。
type Service struct {
	admins    repository.AdminRepository
	banners   repository.BannerRepository
	settings  repository.HomeSettingsRepository
	sanitizer security.TextSanitizerService
	cleaner   Cleaner
	refresher Refresher
	nations   map[string]bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// nationsが空でない場合、バナーのnation_keyはそのいずれかかニュースでなければならない。
// refresherはnilでもよい。
func NewService(
	admins repository.AdminRepository,
	banners repository.BannerRepository,
	settings repository.HomeSettingsRepository,
	sanitizer security.TextSanitizerService,
	cleaner Cleaner,
	refresher Refresher,
	nations []model.Nation,
	logger *slog.Logger,
) *Service {
	known := make(map[string]bool, len(nations))
	for _, n := range nations {
		known[n.Key] = true
	}
	return &Service{
		admins:    admins,
		banners:   banners,
		settings:  settings,
		sanitizer: sanitizer,
		cleaner:   cleaner,
		refresher: refresher,
		nations:   known,
		logger:    logger,
		now:       time.Now,
	}
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashKey はアクセスキーをbcryptでハッシュ化する。
func HashKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("アクセスキーのハッシュ化に失敗しました: %w", err)
	}
	return string(hash), nil
}

func validateKey(key string) error {
	if len(key) < MinKeyLength {
		return model.NewInvalidAdminError(fmt.Sprintf("アクセスキーは%d文字以上にしてください", MinKeyLength))
	}
	if len(key) > maxKeyBytes {
		return model.NewInvalidAdminError(fmt.Sprintf("アクセスキーは%dバイト以下にしてください", maxKeyBytes))
	}
	return nil
}

// Authenticate はメールアドレスとアクセスキーを検証し、管理者を返す。
// 失敗理由は区別せずUnauthorizedを返す。
func (s *Service) Authenticate(ctx context.Context, email, key string) (*model.AdminUser, error) {
	email = NormalizeEmail(email)
	if email == "" || key == "" {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("管理者の取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.KeyHash), []byte(key)); err != nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

// Login は認証に成功したら自動削除を1回実行する。
// 自動削除の失敗はログに記録するだけで、ログイン自体は成功させる。
func (s *Service) Login(ctx context.Context, email, key string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, email, key)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{User: user}
	ids, err := s.cleaner.Run(ctx)
	if err != nil {
		s.logger.Warn("ログイン時の自動削除に失敗しました",
			slog.String("admin_email", user.Email),
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.CleanedIDs = ids
	if len(ids) > 0 {
		s.refresh(ctx)
	}
	return result, nil
}

// Cleanup は保持期間を超過したバナーを削除し、削除したIDを返す。
func (s *Service) Cleanup(ctx context.Context) ([]int64, error) {
	ids, err := s.cleaner.Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.refresh(ctx)
	}
	return ids, nil
}

// ListBanners は管理画面の一覧を作成日時の降順で返す。
// 日付範囲を指定した場合、開始日が解釈できないバナーは除外する。
func (s *Service) ListBanners(ctx context.Context, f BannerFilter) ([]banner.View, error) {
	nation := strings.TrimSpace(f.NationKey)
	if nation == "all" {
		nation = ""
	}

	banners, err := s.banners.ListForAdmin(ctx, nation)
	if err != nil {
		return nil, fmt.Errorf("バナー一覧の取得に失敗しました: %w", err)
	}

	from := banner.ParseDate(f.From)
	to := banner.ParseDate(f.To)
	today := banner.DateOf(s.now())

	views := make([]banner.View, 0, len(banners))
	for _, b := range banners {
		v := banner.Annotate(b, today)
		if from.Valid() || to.Valid() {
			if !v.Start.Valid() {
				continue
			}
			if from.Valid() && v.Start.Before(from) {
				continue
			}
			if to.Valid() && v.Start.After(to) {
				continue
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// SaveBanner は入力を検証・正規化して作成または更新し、IDを返す。
func (s *Service) SaveBanner(ctx context.Context, in model.BannerInput) (int64, error) {
	clean, err := s.validateBanner(in)
	if err != nil {
		return 0, err
	}

	id, err := s.banners.Upsert(ctx, clean)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, model.NewBannerNotFoundError(in.ID)
	}
	if err != nil {
		return 0, fmt.Errorf("バナーの保存に失敗しました: %w", err)
	}

	s.refresh(ctx)
	return id, nil
}

func (s *Service) validateBanner(in model.BannerInput) (*model.BannerInput, error) {
	out := &model.BannerInput{
		ID:        in.ID,
		NationKey: strings.TrimSpace(in.NationKey),
		Title:     s.sanitizer.SanitizeTitle(in.Title),
		StartDate: strings.TrimSpace(in.StartDate),
		EndDate:   strings.TrimSpace(in.EndDate),
	}
	if in.ID < 0 {
		return nil, model.NewInvalidBannerError("IDが不正です")
	}

	switch {
	case out.NationKey == "":
		return nil, model.NewInvalidBannerError("nation_keyは必須です")
	case out.NationKey == model.DefaultNationKey:
		return nil, model.NewInvalidBannerError("defaultはnation_keyとして使用できません")
	case out.NationKey != model.NewsNationKey && len(s.nations) > 0 && !s.nations[out.NationKey]:
		return nil, model.NewInvalidBannerError(fmt.Sprintf("未登録のnation_keyです: %s", out.NationKey))
	}

	imageURL, err := s.sanitizer.NormalizeURL(in.URL)
	if err != nil {
		return nil, model.NewInvalidBannerError("画像URLが不正です")
	}
	if imageURL == "" {
		return nil, model.NewInvalidBannerError("画像URLは必須です")
	}
	out.URL = imageURL

	link, err := s.sanitizer.NormalizeURL(in.Link)
	if err != nil {
		return nil, model.NewInvalidBannerError("リンク先URLが不正です")
	}
	out.Link = link

	start := banner.ParseDate(out.StartDate)
	if out.StartDate != "" && !start.Valid() {
		return nil, model.NewInvalidBannerError(fmt.Sprintf("開始日を解釈できません: %s", out.StartDate))
	}
	end := banner.ParseDate(out.EndDate)
	if out.EndDate != "" && !end.Valid() {
		return nil, model.NewInvalidBannerError(fmt.Sprintf("終了日を解釈できません: %s", out.EndDate))
	}
	if start.Valid() && end.Valid() && end.Before(start) {
		return nil, model.NewInvalidBannerError("終了日は開始日以降にしてください")
	}

	return out, nil
}

// DeleteBanners は指定IDをまとめて削除し、削除件数を返す。
func (s *Service) DeleteBanners(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, model.NewInvalidBannerError("削除するIDを指定してください")
	}
	n, err := s.banners.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("バナーの削除に失敗しました: %w", err)
	}
	if n > 0 {
		s.refresh(ctx)
	}
	return n, nil
}

// HomeSettings はトップページ設定を返す。
func (s *Service) HomeSettings(ctx context.Context) (*model.HomeSettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("トップページ設定の取得に失敗しました: %w", err)
	}
	return settings, nil
}

// UpdateHomeSettings は背景画像URLを検証して保存する。空文字列は未設定を表す。
func (s *Service) UpdateHomeSettings(ctx context.Context, pcURL, mobileURL string) (*model.HomeSettings, error) {
	pc, err := s.sanitizer.NormalizeURL(pcURL)
	if err != nil {
		return nil, model.NewInvalidURLError("PC用背景画像のURL")
	}
	mobile, err := s.sanitizer.NormalizeURL(mobileURL)
	if err != nil {
		return nil, model.NewInvalidURLError("モバイル用背景画像のURL")
	}

	settings := &model.HomeSettings{PCBackgroundURL: pc, MobileBackgroundURL: mobile}
	if err := s.settings.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("トップページ設定の保存に失敗しました: %w", err)
	}

	s.refresh(ctx)
	return s.HomeSettings(ctx)
}

// ListAdmins は全管理者を返す。上位管理者のみ実行できる。
func (s *Service) ListAdmins(ctx context.Context, requester *model.AdminUser) ([]*model.AdminUser, error) {
	if !requester.IsSenior() {
		return nil, model.NewForbiddenError()
	}
	users, err := s.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("管理者一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// SaveAdmin は管理者を作成または更新する。上位管理者のみ実行できる。
// 自分自身のロールを下げることはできない。
func (s *Service) SaveAdmin(ctx context.Context, requester *model.AdminUser, email, key string, role model.AdminRole) (*model.AdminUser, error) {
	if !requester.IsSenior() {
		return nil, model.NewForbiddenError()
	}

	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidAdminError("メールアドレスが不正です")
	}
	if role == "" {
		role = model.AdminRoleAdmin
	}
	if !role.Valid() {
		return nil, model.NewInvalidAdminError(fmt.Sprintf("未定義のロールです: %s", role))
	}
	if email == requester.Email && role != model.AdminRoleSenior {
		return nil, model.NewInvalidAdminError("自分自身のロールは変更できません")
	}

	hash, err := HashKey(key)
	if err != nil {
		return nil, err
	}

	user := &model.AdminUser{Email: email, KeyHash: hash, Role: role}
	if err := s.admins.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("管理者の保存に失敗しました: %w", err)
	}

	s.logger.Info("管理者を保存しました",
		slog.String("admin_email", requester.Email),
		slog.String("target_email", email),
		slog.String("role", string(role)),
	)
	return user, nil
}

// DeleteAdmin は管理者を削除する。上位管理者のみ実行でき、自分自身は削除できない。
func (s *Service) DeleteAdmin(ctx context.Context, requester *model.AdminUser, email string) error {
	if !requester.IsSenior() {
		return model.NewForbiddenError()
	}

	email = NormalizeEmail(email)
	if email == requester.Email {
		return model.NewInvalidAdminError("自分自身は削除できません")
	}

	deleted, err := s.admins.Delete(ctx, email)
	if err != nil {
		return fmt.Errorf("管理者の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewAdminNotFoundError(email)
	}

	s.logger.Info("管理者を削除しました",
		slog.String("admin_email", requester.Email),
		slog.String("target_email", email),
	)
	return nil
}

// refresh は更新をすぐ公開側に反映させる。失敗しても次のポーリングで反映される。
// 管理画面のリクエストが切断されても取得を中断しないよう、キャンセルを引き継がない。
func (s *Service) refresh(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if _, err := s.refresher.RefreshAfterWrite(context.WithoutCancel(ctx)); err != nil {
		s.logger.Debug("更新後のスナップショット取得をスキップしました",
			slog.String("error", err.Error()),
		)
	}
}
