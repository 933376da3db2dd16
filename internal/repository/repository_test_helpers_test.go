package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"consultorio/internal/entity"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Session{},
		&entity.MFASecret{},
		&entity.PasswordResetToken{},
		&entity.SecurityLog{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func createUserForTest(t *testing.T, repo UserRepository, email string) *entity.User {
	t.Helper()
	user := &entity.User{
		Email:        email,
		PasswordHash: "hash",
		Role:         entity.UserRoleStaff,
		FirstName:    "Ana",
		LastName:     "Pérez",
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}
