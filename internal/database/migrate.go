// Package database はデータベース接続とマイグレーション管理を提供する。
// スキーマはbanners、home_settings、admin_accessの3テーブルで構成される。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator はバナー・トップページ設定・管理者テーブルのスキーマを管理する
// migrateインスタンスを生成する。SQLはバイナリに埋め込んだmigrations/から読む。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded banner schema migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare banner schema migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はbanners、home_settings、admin_accessの未適用マイグレーションを順に適用する。
// スキーマがすでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply banner schema migrations: %w", err)
	}

	return nil
}
