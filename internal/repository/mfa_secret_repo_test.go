package repository

import (
	"context"
	"testing"
	"time"

	"consultorio/internal/entity"
)

func TestMFASecretRepositoryUpsertAndDisable(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	secrets := NewMFASecretRepository(db)
	ctx := context.Background()
	user := createUserForTest(t, users, "ana@clinica.com")

	if err := secrets.Upsert(ctx, &entity.MFASecret{UserID: user.ID, Secret: "first"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	enabledAt := time.Now().UTC()
	if err := secrets.Upsert(ctx, &entity.MFASecret{UserID: user.ID, Secret: "second", EnabledAt: &enabledAt}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	stored, err := secrets.FindByUserID(ctx, user.ID)
	if err != nil || stored == nil {
		t.Fatalf("FindByUserID: %+v, %v", stored, err)
	}
	if stored.Secret != "second" || stored.EnabledAt == nil {
		t.Fatalf("upsert did not replace: %+v", stored)
	}

	if err := secrets.Disable(ctx, user.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	stored, _ = secrets.FindByUserID(ctx, user.ID)
	if stored.EnabledAt != nil {
		t.Fatal("expected mfa disabled")
	}
}
