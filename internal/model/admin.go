package model

import "time"

// AdminRole は管理者の権限種別を表す。
type AdminRole string

const (
	// AdminRoleAdmin は通常の管理者。バナーとトップページ設定を操作できる。
	AdminRoleAdmin AdminRole = "admin"
	// AdminRoleSenior は上位管理者。管理者ユーザーの追加・削除もできる。
	AdminRoleSenior AdminRole = "senior_admin"
)

// Valid は定義済みのロールかを返す。
func (r AdminRole) Valid() bool {
	return r == AdminRoleAdmin || r == AdminRoleSenior
}

// AdminUser は管理画面へのアクセス権を持つユーザーを表す。
// アクセスキーはbcryptハッシュとしてのみ保持する。
type AdminUser struct {
	Email     string
	KeyHash   string
	Role      AdminRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSenior は上位管理者かを返す。
func (u *AdminUser) IsSenior() bool {
	return u != nil && u.Role == AdminRoleSenior
}
