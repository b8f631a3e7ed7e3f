package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/bannerboard/internal/model"
)

func TestPostgresAdminRepo_ImplementsInterface(t *testing.T) {
	var _ AdminRepository = (*PostgresAdminRepo)(nil)
}

var adminCols = []string{"email", "key_hash", "role", "created_at", "updated_at"}

func TestPostgresAdminRepo_FindByEmail(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM admin_access WHERE email = $1`)).
		WithArgs("boss@example.com").
		WillReturnRows(sqlmock.NewRows(adminCols).
			AddRow("boss@example.com", "$2a$10$hash", "senior_admin", now, now))

	repo := NewPostgresAdminRepo(db)
	got, err := repo.FindByEmail(context.Background(), "boss@example.com")
	if err != nil {
		t.Fatalf("FindByEmail err=%v", err)
	}
	want := &model.AdminUser{
		Email: "boss@example.com", KeyHash: "$2a$10$hash",
		Role: model.AdminRoleSenior, CreatedAt: now, UpdatedAt: now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if !got.IsSenior() {
		t.Error("IsSenior() = false, want true")
	}
}

func TestPostgresAdminRepo_FindByEmail_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM admin_access`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(adminCols))

	repo := NewPostgresAdminRepo(db)
	got, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("FindByEmail err=%v", err)
	}
	if got != nil {
		t.Errorf("FindByEmail = %+v, want nil", got)
	}
}

func TestPostgresAdminRepo_List(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM admin_access ORDER BY email`)).
		WillReturnRows(sqlmock.NewRows(adminCols).
			AddRow("a@example.com", "h1", "admin", now, now).
			AddRow("b@example.com", "h2", "senior_admin", now, now))

	repo := NewPostgresAdminRepo(db)
	got, err := repo.List(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("List err=%v len=%d", err, len(got))
	}
	if got[1].Role != model.AdminRoleSenior {
		t.Errorf("role = %q, want %q", got[1].Role, model.AdminRoleSenior)
	}
}

func TestPostgresAdminRepo_Upsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (email) DO UPDATE`)).
		WithArgs("a@example.com", "hash", "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresAdminRepo(db)
	err := repo.Upsert(context.Background(), &model.AdminUser{
		Email: "a@example.com", KeyHash: "hash", Role: model.AdminRoleAdmin,
	})
	if err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresAdminRepo_Delete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"削除あり", 1, true},
		{"対象なし", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM admin_access WHERE email = $1`)).
				WithArgs("a@example.com").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			repo := NewPostgresAdminRepo(db)
			got, err := repo.Delete(context.Background(), "a@example.com")
			if err != nil {
				t.Fatalf("Delete err=%v", err)
			}
			if got != tt.want {
				t.Errorf("Delete = %v, want %v", got, tt.want)
			}
		})
	}
}
