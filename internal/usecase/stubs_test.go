package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/repository"
)

// memoryStore emulates the conditional updates of the postgres repositories.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]domain.User
	keys  []domain.RecoveryKey
	codes []domain.BackupCode
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]domain.User)}
}

type memoryUsers struct{ s *memoryStore }

func (r memoryUsers) Create(_ context.Context, user domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if domain.NormalizeHandle(existing.Handle) == domain.NormalizeHandle(user.Handle) {
			return &repository.ConflictError{Field: "handle"}
		}
		if existing.Email != nil && user.Email != nil && domain.NormalizeEmail(*existing.Email) == domain.NormalizeEmail(*user.Email) {
			return &repository.ConflictError{Field: "email"}
		}
	}
	r.s.users[user.ID] = user
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r memoryUsers) GetByHandle(_ context.Context, handle string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if domain.NormalizeHandle(user.Handle) == domain.NormalizeHandle(handle) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memoryUsers) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)

	keys := r.s.keys[:0]
	for _, key := range r.s.keys {
		if key.UserID != id {
			keys = append(keys, key)
		}
	}
	r.s.keys = keys

	codes := r.s.codes[:0]
	for _, code := range r.s.codes {
		if code.UserID != id {
			codes = append(codes, code)
		}
	}
	r.s.codes = codes
	return nil
}

type memoryKeys struct{ s *memoryStore }

func (r memoryKeys) Rotate(_ context.Context, key domain.RecoveryKey) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[key.UserID]; !ok {
		return 0, repository.ErrNotFound
	}
	revoked := 0
	for i := range r.s.keys {
		if r.s.keys[i].UserID == key.UserID && r.s.keys[i].Usable() {
			at := key.CreatedAt
			r.s.keys[i].RevokedAt = &at
			revoked++
		}
	}
	r.s.keys = append(r.s.keys, key)
	return revoked, nil
}

func (r memoryKeys) ConsumeByHash(_ context.Context, hash string, at time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.keys {
		if r.s.keys[i].KeyHash == hash && r.s.keys[i].Usable() {
			r.s.keys[i].ConsumedAt = &at
			return r.s.keys[i].UserID, nil
		}
	}
	return "", repository.ErrNotFound
}

func (r memoryKeys) GetByHash(_ context.Context, hash string) (*domain.RecoveryKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, key := range r.s.keys {
		if key.KeyHash == hash {
			k := key
			return &k, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memoryKeys) ListByUser(_ context.Context, userID string) ([]domain.RecoveryKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.RecoveryKey
	for i := len(r.s.keys) - 1; i >= 0; i-- {
		if r.s.keys[i].UserID == userID {
			out = append(out, r.s.keys[i])
		}
	}
	return out, nil
}

type memoryCodes struct{ s *memoryStore }

func (r memoryCodes) ReplaceSet(_ context.Context, userID string, codes []domain.BackupCode) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return 0, repository.ErrNotFound
	}
	kept := r.s.codes[:0]
	invalidated := 0
	for _, code := range r.s.codes {
		if code.UserID == userID {
			invalidated++
			continue
		}
		kept = append(kept, code)
	}
	r.s.codes = append(kept, codes...)
	return invalidated, nil
}

func (r memoryCodes) ConsumeByHash(_ context.Context, hash string, at time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.codes {
		if r.s.codes[i].CodeHash == hash && r.s.codes[i].ConsumedAt == nil {
			r.s.codes[i].ConsumedAt = &at
			return r.s.codes[i].UserID, nil
		}
	}
	return "", repository.ErrNotFound
}

func (r memoryCodes) Status(_ context.Context, userID string) (domain.BackupCodeStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var status domain.BackupCodeStatus
	for _, code := range r.s.codes {
		if code.UserID != userID {
			continue
		}
		status.Total++
		if code.ConsumedAt == nil {
			status.Remaining++
		}
		if status.GeneratedAt == nil || code.CreatedAt.Before(*status.GeneratedAt) {
			at := code.CreatedAt
			status.GeneratedAt = &at
		}
	}
	return status, nil
}

type memoryGrants struct {
	mu     sync.Mutex
	grants map[string]domain.VerificationGrant
	err    error
}

func newMemoryGrants() *memoryGrants {
	return &memoryGrants{grants: make(map[string]domain.VerificationGrant)}
}

func (g *memoryGrants) Save(_ context.Context, grant domain.VerificationGrant) error {
	if g.err != nil {
		return g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[grant.Token] = grant
	return nil
}

func (g *memoryGrants) Take(_ context.Context, token string) (*domain.VerificationGrant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grant, ok := g.grants[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(g.grants, token)
	return &grant, nil
}

func (g *memoryGrants) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.grants)
}

// fakeHasher stands in for argon2id; it counts verifications to observe the dummy path.
type fakeHasher struct {
	verifies atomic.Int32
}

func (h *fakeHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return "hashed:" + secret, nil
}

func (h *fakeHasher) Verify(secret, encoded string) (bool, error) {
	h.verifies.Add(1)
	if !strings.HasPrefix(encoded, "hashed:") {
		return false, errors.New("unreadable hash")
	}
	return encoded == "hashed:"+secret, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	generated  []domain.RecoveryKeyGeneratedEvent
	rotated    []domain.BackupCodesRegeneratedEvent
	redeemed   []domain.CredentialRedeemedEvent
	exported   []domain.AccountExportedEvent
	deleted    []domain.AccountDeletedEvent
	err        error
}

func (p *recordingPublisher) PublishUserRegistered(_ context.Context, e domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, e)
	return p.err
}

func (p *recordingPublisher) PublishRecoveryKeyGenerated(_ context.Context, e domain.RecoveryKeyGeneratedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generated = append(p.generated, e)
	return p.err
}

func (p *recordingPublisher) PublishBackupCodesRegenerated(_ context.Context, e domain.BackupCodesRegeneratedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotated = append(p.rotated, e)
	return p.err
}

func (p *recordingPublisher) PublishCredentialRedeemed(_ context.Context, e domain.CredentialRedeemedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redeemed = append(p.redeemed, e)
	return p.err
}

func (p *recordingPublisher) PublishAccountExported(_ context.Context, e domain.AccountExportedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exported = append(p.exported, e)
	return p.err
}

func (p *recordingPublisher) PublishAccountDeleted(_ context.Context, e domain.AccountDeletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, e)
	return p.err
}

type recordingStorage struct {
	userID  string
	payload []byte
	err     error
}

func (s *recordingStorage) StoreExport(_ context.Context, userID string, payload []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.userID = userID
	s.payload = payload
	return "https://storage.local/exports/" + userID + ".json?sig=abc", nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *recordingMetrics) ObserveCredential(kind domain.CredentialKind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[string(kind)+"/"+outcome]++
}

func (m *recordingMetrics) count(kind domain.CredentialKind, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[string(kind)+"/"+outcome]
}

// testEnv wires every service against one in-memory store.
type testEnv struct {
	store     *memoryStore
	hasher    *fakeHasher
	grants    *memoryGrants
	publisher *recordingPublisher
	metrics   *recordingMetrics
	storage   *recordingStorage

	recovery *RecoveryKeyService
	backup   *BackupCodeService
	verifier *CredentialVerifier
	privacy  *PrivacyService
	accounts *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     newMemoryStore(),
		hasher:    &fakeHasher{},
		grants:    newMemoryGrants(),
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
	}
	users := memoryUsers{env.store}
	keys := memoryKeys{env.store}
	codes := memoryCodes{env.store}
	tokens := security.NewTokenHasher("test-pepper")

	env.recovery = NewRecoveryKeyService(users, keys, tokens, env.publisher, "")
	env.backup = NewBackupCodeService(users, codes, tokens, env.publisher)

	verifier, err := NewCredentialVerifier(users, env.hasher, env.recovery, env.backup, env.metrics, nil)
	if err != nil {
		t.Fatalf("NewCredentialVerifier: %v", err)
	}
	env.verifier = verifier

	sessions, err := security.NewSessionManager("test-session-secret-with-32-bytes!!", "test", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	env.privacy = NewPrivacyService(users, keys, codes, env.grants, verifier, nil, env.publisher, time.Minute)
	env.accounts = NewAccountService(users, env.hasher, security.NewPasswordPolicy(), verifier, sessions, env.publisher)
	return env
}

func (e *testEnv) withStorage() {
	e.storage = &recordingStorage{}
	e.privacy.storage = e.storage
}

func (e *testEnv) seedAnonymous(t *testing.T, handle, secretKey string) domain.User {
	t.Helper()
	account, err := e.accounts.JoinAnonymous(context.Background(), handle, secretKey)
	if err != nil {
		t.Fatalf("JoinAnonymous: %v", err)
	}
	return account.User
}

func (e *testEnv) seedRegistered(t *testing.T, handle, email, password string) domain.User {
	t.Helper()
	user, _, err := e.accounts.Register(context.Background(), handle, email, password)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func (e *testEnv) userExists(id string) bool {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	_, ok := e.store.users[id]
	return ok
}
