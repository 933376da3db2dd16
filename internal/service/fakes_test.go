package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"consultorio/internal/entity"
	"consultorio/internal/repository"
	"consultorio/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type memUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]entity.User
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{users: make(map[uuid.UUID]entity.User)}
}

func (r *memUserRepository) Create(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || !user.IsActive {
		return nil, nil
	}
	return &user, nil
}

func (r *memUserRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email && user.IsActive {
			return &user, nil
		}
	}
	return nil, nil
}

func (r *memUserRepository) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

func (r *memUserRepository) List(_ context.Context, _, _ int) ([]entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]entity.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

type memSessionRepository struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]entity.Session
	updates   int
	updateErr error
}

func newMemSessionRepository() *memSessionRepository {
	return &memSessionRepository{sessions: make(map[uuid.UUID]entity.Session)}
}

func (r *memSessionRepository) Create(_ context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = session.LastUsedAt
	r.sessions[session.ID] = *session
	return nil
}

func (r *memSessionRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *memSessionRepository) Update(_ context.Context, id uuid.UUID, update repository.SessionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates++
	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	r.sessions[id] = applySessionUpdate(session, update)
	return nil
}

func (r *memSessionRepository) UpdateManyByUser(_ context.Context, userID uuid.UUID, update repository.SessionUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return 0, r.updateErr
	}
	r.updates++
	var affected int64
	for id, session := range r.sessions {
		if session.UserID != userID {
			continue
		}
		r.sessions[id] = applySessionUpdate(session, update)
		affected++
	}
	return affected, nil
}

func (r *memSessionRepository) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []entity.Session
	for _, session := range r.sessions {
		if session.UserID == userID && !session.Revoked {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].LastUsedAt.After(sessions[j].LastUsedAt) })
	return sessions, nil
}

func (r *memSessionRepository) get(t *testing.T, id uuid.UUID) entity.Session {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		t.Fatalf("session %s not stored", id)
	}
	return session
}

func applySessionUpdate(session entity.Session, update repository.SessionUpdate) entity.Session {
	if update.ClearRefreshToken {
		session.RefreshTokenHash = nil
	} else if update.RefreshTokenHash != nil {
		hash := *update.RefreshTokenHash
		session.RefreshTokenHash = &hash
	}
	if update.ExpiresAt != nil {
		session.ExpiresAt = *update.ExpiresAt
	}
	if update.LastUsedAt != nil {
		session.LastUsedAt = *update.LastUsedAt
	}
	if update.Device != nil {
		session.Device = update.Device
	}
	if update.IPAddress != nil {
		session.IPAddress = update.IPAddress
	}
	if update.UserAgent != nil {
		session.UserAgent = update.UserAgent
	}
	if update.RevokedAt != nil {
		revokedAt := *update.RevokedAt
		session.Revoked = true
		session.RevokedAt = &revokedAt
	}
	return session
}

type memSecurityLogRepository struct {
	mu   sync.Mutex
	logs []entity.SecurityLog
}

func (r *memSecurityLogRepository) Log(_ context.Context, log *entity.SecurityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *memSecurityLogRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]entity.SecurityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var logs []entity.SecurityLog
	for _, log := range r.logs {
		if log.SessionID != nil && *log.SessionID == sessionID {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

func (r *memSecurityLogRepository) actions() []entity.SecurityAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]entity.SecurityAction, 0, len(r.logs))
	for _, log := range r.logs {
		actions = append(actions, log.Action)
	}
	return actions
}

type memResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]entity.PasswordResetToken
}

func (r *memResetTokenRepository) Create(_ context.Context, token *entity.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens == nil {
		r.tokens = make(map[uuid.UUID]entity.PasswordResetToken)
	}
	token.ID = uuid.New()
	r.tokens[token.ID] = *token
	return nil
}

func (r *memResetTokenRepository) FindValid(_ context.Context, tokenHash string, now time.Time) (*entity.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.TokenHash == tokenHash && token.UsedAt == nil && token.ExpiresAt.After(now) {
			return &token, nil
		}
	}
	return nil, nil
}

func (r *memResetTokenRepository) MarkUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok || token.UsedAt != nil {
		return gorm.ErrRecordNotFound
	}
	token.UsedAt = &usedAt
	r.tokens[id] = token
	return nil
}

type memMFASecretRepository struct {
	mu      sync.Mutex
	secrets map[uuid.UUID]entity.MFASecret
}

func (r *memMFASecretRepository) FindByUserID(_ context.Context, userID uuid.UUID) (*entity.MFASecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	secret, ok := r.secrets[userID]
	if !ok {
		return nil, nil
	}
	return &secret, nil
}

func (r *memMFASecretRepository) Upsert(_ context.Context, secret *entity.MFASecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secrets == nil {
		r.secrets = make(map[uuid.UUID]entity.MFASecret)
	}
	r.secrets[secret.UserID] = *secret
	return nil
}

func (r *memMFASecretRepository) Disable(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	secret, ok := r.secrets[userID]
	if ok {
		secret.EnabledAt = nil
		r.secrets[userID] = secret
	}
	return nil
}

// fixedCodeMFA accepts exactly one code for every secret.
type fixedCodeMFA struct {
	code string
}

func (p fixedCodeMFA) GenerateSecret(accountName string) (string, string, error) {
	return "SECRET-" + accountName, "otpauth://totp/Consultorio:" + accountName, nil
}

func (p fixedCodeMFA) ValidateCode(_ string, code string, _ time.Time) bool {
	return code == p.code
}

type recordingResetSender struct {
	email string
	token string
}

func (s *recordingResetSender) SendPasswordResetEmail(_ context.Context, email string, token string) error {
	s.email = email
	s.token = token
	return nil
}

type testEnv struct {
	svc      *AuthService
	clock    *fakeClock
	users    *memUserRepository
	sessions *memSessionRepository
	logs     *memSecurityLogRepository
	resets   *memResetTokenRepository
	mfa      *memMFASecretRepository
	sender   *recordingResetSender
	jwt      *utils.JWTManager
}

func newTestEnv(t *testing.T, config AuthConfig) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	env := &testEnv{
		clock:    clock,
		users:    newMemUserRepository(),
		sessions: newMemSessionRepository(),
		logs:     &memSecurityLogRepository{},
		resets:   &memResetTokenRepository{},
		mfa:      &memMFASecretRepository{},
		sender:   &recordingResetSender{},
		jwt:      &utils.JWTManager{Secret: []byte("test-secret"), Issuer: "consultorio", Now: clock.Now},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env.svc = NewAuthService(
		env.users,
		env.sessions,
		env.resets,
		env.mfa,
		env.logs,
		env.sender,
		BcryptPasswordHasher{Cost: bcrypt.MinCost},
		JWTAccessIssuer{Manager: env.jwt},
		MFATokenIssuerJWT{Secret: []byte("mfa-secret"), Now: clock.Now},
		fixedCodeMFA{code: "123456"},
		clock,
		logger,
		config,
	)
	return env
}

func (e *testEnv) createUser(t *testing.T, email string, password string) entity.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &entity.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         entity.UserRoleDoctor,
		FirstName:    "Ana",
		LastName:     "Pérez",
		IsActive:     true,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return *user
}

func strPtr(value string) *string {
	return &value
}
