package repository

import (
	"context"
	"testing"
	"time"

	"consultorio/internal/entity"

	"github.com/google/uuid"
)

func strPtr(value string) *string {
	return &value
}

func TestSessionRepositoryUpdateOnlyTouchesNamedColumns(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()
	user := createUserForTest(t, users, "ana@clinica.com")

	now := time.Now().UTC().Truncate(time.Second)
	session := &entity.Session{
		UserID:           user.ID,
		RefreshTokenHash: strPtr("hash-0"),
		IPAddress:        strPtr("1.2.3.4"),
		ExpiresAt:        now.Add(time.Hour),
		LastUsedAt:       now,
	}
	if err := sessions.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID == uuid.Nil {
		t.Fatal("expected generated session id")
	}

	later := now.Add(time.Minute)
	if err := sessions.Update(ctx, session.ID, SessionUpdate{
		RefreshTokenHash: strPtr("hash-1"),
		LastUsedAt:       &later,
		UserAgent:        strPtr("Mozilla/5.0"),
	}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	stored, err := sessions.FindByID(ctx, session.ID)
	if err != nil || stored == nil {
		t.Fatalf("find session: %v", err)
	}
	if *stored.RefreshTokenHash != "hash-1" || !stored.LastUsedAt.Equal(later) || *stored.UserAgent != "Mozilla/5.0" {
		t.Fatalf("update not applied: %+v", stored)
	}
	if *stored.IPAddress != "1.2.3.4" || !stored.ExpiresAt.Equal(now.Add(time.Hour)) || stored.Revoked {
		t.Fatalf("update touched other columns: %+v", stored)
	}

	if err := sessions.Update(ctx, session.ID, SessionUpdate{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
}

func TestSessionRepositoryRevoke(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()
	user := createUserForTest(t, users, "ana@clinica.com")

	now := time.Now().UTC()
	session := &entity.Session{UserID: user.ID, RefreshTokenHash: strPtr("hash"), ExpiresAt: now.Add(time.Hour), LastUsedAt: now}
	if err := sessions.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	revokedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := sessions.Update(ctx, session.ID, SessionUpdate{RevokedAt: &revokedAt, ClearRefreshToken: true}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stored, err := sessions.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if !stored.Revoked || stored.RevokedAt == nil || stored.RefreshTokenHash != nil {
		t.Fatalf("session not revoked: %+v", stored)
	}
	if !stored.RevokedAt.Equal(revokedAt) {
		t.Fatalf("revoked_at = %v, want the caller's %v", stored.RevokedAt, revokedAt)
	}
}

func TestSessionRepositoryUpdateManyByUser(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()
	ana := createUserForTest(t, users, "ana@clinica.com")
	luis := createUserForTest(t, users, "luis@clinica.com")

	now := time.Now().UTC()
	var anaSessions []uuid.UUID
	for i := 0; i < 3; i++ {
		s := &entity.Session{UserID: ana.ID, RefreshTokenHash: strPtr(uuid.NewString()), ExpiresAt: now.Add(time.Hour), LastUsedAt: now}
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
		anaSessions = append(anaSessions, s.ID)
	}
	luisSession := &entity.Session{UserID: luis.ID, RefreshTokenHash: strPtr("luis"), ExpiresAt: now.Add(time.Hour), LastUsedAt: now}
	if err := sessions.Create(ctx, luisSession); err != nil {
		t.Fatalf("create session: %v", err)
	}

	affected, err := sessions.UpdateManyByUser(ctx, ana.ID, SessionUpdate{RevokedAt: &now, ClearRefreshToken: true})
	if err != nil {
		t.Fatalf("UpdateManyByUser: %v", err)
	}
	if affected != 3 {
		t.Fatalf("affected = %d, want 3", affected)
	}
	for _, id := range anaSessions {
		stored, _ := sessions.FindByID(ctx, id)
		if !stored.Revoked || stored.RefreshTokenHash != nil {
			t.Fatalf("session %s not revoked", id)
		}
	}
	stored, _ := sessions.FindByID(ctx, luisSession.ID)
	if stored.Revoked {
		t.Fatal("other user's session revoked")
	}

	active, err := sessions.ListActiveByUser(ctx, ana.ID)
	if err != nil {
		t.Fatalf("ListActiveByUser: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(active))
	}
	active, err = sessions.ListActiveByUser(ctx, luis.ID)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active session for luis, got %d, %v", len(active), err)
	}
}

func TestSessionRepositoryFindMissing(t *testing.T) {
	db := newRepositoryDBForTest(t)
	sessions := NewSessionRepository(db)

	stored, err := sessions.FindByID(context.Background(), uuid.New())
	if err != nil || stored != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", stored, err)
	}
}
