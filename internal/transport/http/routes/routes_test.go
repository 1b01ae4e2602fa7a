package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/config"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/transport/http/handlers"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	httproutes "github.com/jumbojolt/identity/internal/transport/http/routes"
	"github.com/jumbojolt/identity/internal/usecase"
)

type fakeAccounts struct {
	sessions  *security.SessionManager
	users     map[string]domain.User
	loginErr  error
	lastRef   domain.IdentityRef
	lastCred  domain.Credential
	anonCalls int
}

func (f *fakeAccounts) Register(_ context.Context, handle, email, _ string) (domain.User, domain.Session, error) {
	if handle == "taken" {
		return domain.User{}, domain.Session{}, usecase.ErrHandleTaken
	}
	user := domain.User{ID: "reg-1", Kind: domain.UserKindRegistered, Handle: handle, Email: &email, Role: domain.DefaultRole}
	session, err := f.sessions.Issue(user, domain.CredentialPassword)
	return user, session, err
}

func (f *fakeAccounts) JoinAnonymous(_ context.Context, handle, secretKey string) (usecase.AnonymousAccount, error) {
	f.anonCalls++
	if handle == "" {
		handle = "BraveEagle42"
	}
	if secretKey == "" {
		secretKey = "ABCD-EFGH-JKMN-PQRS"
	}
	user := domain.User{ID: "anon-1", Kind: domain.UserKindAnonymous, Handle: handle, Role: domain.DefaultRole}
	session, err := f.sessions.Issue(user, domain.CredentialSecretKey)
	return usecase.AnonymousAccount{User: user, SecretKey: secretKey, Session: session}, err
}

func (f *fakeAccounts) Login(_ context.Context, ref domain.IdentityRef, cred domain.Credential) (domain.User, domain.Session, error) {
	f.lastRef = ref
	f.lastCred = cred
	if f.loginErr != nil {
		return domain.User{}, domain.Session{}, f.loginErr
	}
	user := domain.User{ID: "anon-1", Kind: domain.UserKindAnonymous, Handle: "BraveEagle", Role: domain.DefaultRole}
	session, err := f.sessions.Issue(user, cred.Kind())
	return user, session, err
}

func (f *fakeAccounts) Profile(_ context.Context, userID string) (domain.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return domain.User{}, usecase.ErrUserNotFound
	}
	return user, nil
}

type fakeRecoveryKeys struct {
	err error
}

func (f *fakeRecoveryKeys) Generate(_ context.Context, _ string) (usecase.GeneratedRecoveryKey, error) {
	if f.err != nil {
		return usecase.GeneratedRecoveryKey{}, f.err
	}
	return usecase.GeneratedRecoveryKey{
		KeyDisplay: "JJRK-AAAA-BBBB-CCCC-DDDD-EEEE-FFFF-GGGG-HHHH",
		QRPayload:  "jumbojolt://recover?handle=BraveEagle&key=JJRK-AAAA",
	}, nil
}

func (f *fakeRecoveryKeys) History(_ context.Context, userID string) ([]domain.RecoveryKey, error) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	consumed := created.Add(time.Hour)
	return []domain.RecoveryKey{
		{ID: "key-2", UserID: userID, KeyHash: "hash-2", CreatedAt: created.Add(2 * time.Hour)},
		{ID: "key-1", UserID: userID, KeyHash: "hash-1", CreatedAt: created, ConsumedAt: &consumed},
	}, nil
}

type fakeBackupCodes struct{}

func (fakeBackupCodes) GenerateSet(_ context.Context, _ string) (usecase.GeneratedBackupCodes, error) {
	codes := make([]string, 8)
	for i := range codes {
		codes[i] = "ABCDE-FGHJ" + string(rune('0'+i))
	}
	return usecase.GeneratedBackupCodes{Codes: codes}, nil
}

func (fakeBackupCodes) Status(_ context.Context, _ string) (domain.BackupCodeStatus, error) {
	return domain.BackupCodeStatus{Total: 8, Remaining: 5}, nil
}

type fakePrivacy struct {
	verifyErr error
	grants    map[string]domain.PrivacyAction
	deleted   []string
}

func (f *fakePrivacy) RequireVerification(_ context.Context, userID string, action domain.PrivacyAction, cred domain.Credential) (domain.VerificationGrant, error) {
	if f.verifyErr != nil {
		return domain.VerificationGrant{}, f.verifyErr
	}
	token := "grant-" + string(action)
	f.grants[token] = action
	return domain.VerificationGrant{Token: token, UserID: userID, Action: action, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakePrivacy) take(token string, action domain.PrivacyAction) error {
	got, ok := f.grants[token]
	delete(f.grants, token)
	if !ok || got != action {
		return usecase.ErrVerificationRequired
	}
	return nil
}

func (f *fakePrivacy) Export(_ context.Context, userID, token string) (usecase.ExportResult, error) {
	if err := f.take(token, domain.PrivacyActionExport); err != nil {
		return usecase.ExportResult{}, err
	}
	return usecase.ExportResult{Bundle: domain.DataExport{Profile: domain.ExportProfile{ID: userID}}}, nil
}

func (f *fakePrivacy) Delete(_ context.Context, userID, token string) error {
	if err := f.take(token, domain.PrivacyActionDelete); err != nil {
		return err
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

type fakeChecker struct {
	err error
}

func (f fakeChecker) Ping(context.Context) error        { return f.err }
func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type testServer struct {
	engine   *gin.Engine
	sessions *security.SessionManager
	accounts *fakeAccounts
	recovery *fakeRecoveryKeys
	privacy  *fakePrivacy
}

func newTestServer(t *testing.T, mutate func(*httproutes.Dependencies)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions, err := security.NewSessionManager("routes-test-secret-that-is-32-bytes", "test", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	srv := &testServer{
		sessions: sessions,
		accounts: &fakeAccounts{sessions: sessions, users: map[string]domain.User{
			"anon-1": {ID: "anon-1", Kind: domain.UserKindAnonymous, Handle: "BraveEagle", Role: domain.DefaultRole},
		}},
		recovery: &fakeRecoveryKeys{},
		privacy:  &fakePrivacy{grants: make(map[string]domain.PrivacyAction)},
	}

	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	deps := httproutes.Dependencies{
		Config:   &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics,
		Gatherer: registry,
		Sessions: sessions,
		Services: httproutes.ServiceSet{
			Accounts:     srv.accounts,
			RecoveryKeys: srv.recovery,
			BackupCodes:  fakeBackupCodes{},
			Privacy:      srv.privacy,
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv.engine = httproutes.Register(deps)
	return srv
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	session, err := s.sessions.Issue(domain.User{ID: userID, Kind: domain.UserKindAnonymous}, domain.CredentialSecretKey)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return session.Token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var body handlers.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestReadinessReportsDependencies(t *testing.T) {
	srv := newTestServer(t, func(d *httproutes.Dependencies) {
		d.Database = fakeChecker{}
		d.Cache = fakeChecker{err: errors.New("redis down")}
	})

	rr := srv.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var body handlers.ReadyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["postgres"] != "ok" || body.Checks["redis"] != "unavailable" {
		t.Fatalf("unexpected checks %+v", body.Checks)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodGet, "/healthz", "", nil)

	rr := srv.do(t, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte("jumbojolt_http_requests_total")) {
		t.Fatalf("expected http metrics in exposition, got %d", rr.Code)
	}
}

func TestAnonymousJoinAcceptsEmptyBody(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/anonymous", "", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var body handlers.AnonymousResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.Handle != "BraveEagle42" || body.SecretKey == "" || body.Session.Token == "" {
		t.Fatalf("unexpected response %+v", body)
	}
}

func TestRegisterConflictMapsToHandleTaken(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"handle": "taken", "email": "t@example.com", "password": "whatever",
	})
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "HANDLE_TAKEN" {
		t.Fatalf("expected 409 HANDLE_TAKEN, got %d %s", rr.Code, rr.Body.String())
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"handle": "x"})
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != "INVALID_REQUEST" {
		t.Fatalf("expected 400 INVALID_REQUEST, got %d", rr.Code)
	}
}

func TestLoginBuildsTypedCredential(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": " BraveEagle ", "type": "secret_key", "secret_key": "abc123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if srv.accounts.lastRef.Handle != "BraveEagle" {
		t.Fatalf("unexpected ref %+v", srv.accounts.lastRef)
	}
	if cred, ok := srv.accounts.lastCred.(domain.SecretKey); !ok || string(cred) != "abc123" {
		t.Fatalf("unexpected credential %#v", srv.accounts.lastCred)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": "BraveEagle", "type": "recovery_key", "password": "x",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported type, got %d", rr.Code)
	}

	srv.accounts.loginErr = usecase.ErrInvalidCredential
	rr = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": "BraveEagle", "type": "password", "password": "nope",
	})
	if rr.Code != http.StatusUnauthorized || decodeError(t, rr).Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS, got %d", rr.Code)
	}
}

func TestMeRequiresSession(t *testing.T) {
	srv := newTestServer(t, nil)

	if rr := srv.do(t, http.MethodGet, "/api/v1/auth/me", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr := srv.do(t, http.MethodGet, "/api/v1/auth/me", srv.token(t, "anon-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body handlers.MeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.Handle != "BraveEagle" {
		t.Fatalf("unexpected profile %+v", body.User)
	}
}

func TestRecoveryKeyEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/recovery-key/generate", srv.token(t, "anon-1"), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var generated handlers.RecoveryKeyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &generated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if generated.KeyDisplay == "" || generated.QRPayload == "" {
		t.Fatalf("unexpected response %+v", generated)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("key responses must not be cached")
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/recovery-key/redeem", "", map[string]string{"key_display": generated.KeyDisplay})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if _, ok := srv.accounts.lastCred.(domain.RecoveryKeyCredential); !ok {
		t.Fatalf("expected recovery key credential, got %#v", srv.accounts.lastCred)
	}

	srv.accounts.loginErr = usecase.ErrAlreadyUsed
	rr = srv.do(t, http.MethodPost, "/api/v1/recovery-key/redeem", "", map[string]string{"key_display": generated.KeyDisplay})
	reused := decodeError(t, rr)
	srv.accounts.loginErr = usecase.ErrInvalidKey
	rr = srv.do(t, http.MethodPost, "/api/v1/recovery-key/redeem", "", map[string]string{"key_display": "JJRK-0000"})
	invalid := decodeError(t, rr)

	if reused.Code != "ALREADY_USED" || invalid.Code != "INVALID_KEY" {
		t.Fatalf("unexpected codes %q / %q", reused.Code, invalid.Code)
	}
	if reused.Error != invalid.Error {
		t.Fatalf("reused and invalid keys must share one message: %q vs %q", reused.Error, invalid.Error)
	}

	rr = srv.do(t, http.MethodGet, "/api/v1/recovery-key/history", srv.token(t, "anon-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from history, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "hash-") {
		t.Fatalf("history must not expose hashes: %s", rr.Body.String())
	}
	var history handlers.RecoveryKeyHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Keys) != 2 || history.Keys[0].Status != "active" || history.Keys[1].Status != "consumed" {
		t.Fatalf("unexpected history %+v", history.Keys)
	}

	srv.recovery.err = usecase.ErrNotAnonymous
	rr = srv.do(t, http.MethodPost, "/api/v1/recovery-key/generate", srv.token(t, "reg-1"), nil)
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "NOT_ANONYMOUS" {
		t.Fatalf("expected 403 NOT_ANONYMOUS, got %d", rr.Code)
	}
}

func TestBackupCodeEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.token(t, "anon-1")

	rr := srv.do(t, http.MethodPost, "/api/v1/backup-codes/generate", token, nil)
	var set handlers.BackupCodesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusCreated || len(set.Codes) != 8 {
		t.Fatalf("expected 201 with 8 codes, got %d / %d", rr.Code, len(set.Codes))
	}

	rr = srv.do(t, http.MethodGet, "/api/v1/backup-codes/status", token, nil)
	var status handlers.BackupCodeStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Total != 8 || status.Remaining != 5 {
		t.Fatalf("unexpected status %+v", status)
	}

	srv.accounts.loginErr = usecase.ErrInvalidCode
	rr = srv.do(t, http.MethodPost, "/api/v1/backup-codes/login", "", map[string]string{"code": set.Codes[2].CodeDisplay})
	if rr.Code != http.StatusUnauthorized || decodeError(t, rr).Code != "INVALID_CODE" {
		t.Fatalf("expected 401 INVALID_CODE, got %d", rr.Code)
	}
}

func TestGDPRFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.token(t, "anon-1")

	rr := srv.do(t, http.MethodPost, "/api/v1/gdpr/delete", token, map[string]string{"grant_token": "forged"})
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "VERIFICATION_REQUIRED" {
		t.Fatalf("expected 403 VERIFICATION_REQUIRED, got %d", rr.Code)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/gdpr/delete", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without a grant token, got %d", rr.Code)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/gdpr/verify-delete", token, map[string]string{"type": "secret_key", "secret_key": "abc123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var verified handlers.VerifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !verified.Authorized || verified.GrantToken == "" {
		t.Fatalf("unexpected verify response %+v", verified)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/gdpr/delete", token, map[string]string{"grant_token": verified.GrantToken})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(srv.privacy.deleted) != 1 || srv.privacy.deleted[0] != "anon-1" {
		t.Fatalf("unexpected deletions %v", srv.privacy.deleted)
	}

	srv.privacy.verifyErr = usecase.ErrVerificationFailed
	rr = srv.do(t, http.MethodPost, "/api/v1/gdpr/verify-export", token, map[string]string{"type": "password", "password": "wrong"})
	if rr.Code != http.StatusUnauthorized || decodeError(t, rr).Code != "VERIFICATION_FAILED" {
		t.Fatalf("expected 401 VERIFICATION_FAILED, got %d", rr.Code)
	}
}

func TestGDPRExportInline(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.token(t, "anon-1")

	rr := srv.do(t, http.MethodPost, "/api/v1/gdpr/verify-export", token, map[string]string{"type": "secret_key", "secret_key": "abc123"})
	var verified handlers.VerifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/gdpr/export", token, map[string]string{"grant_token": verified.GrantToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var export handlers.ExportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &export); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if export.Export == nil || export.Export.Profile.ID != "anon-1" || export.DownloadURL != "" {
		t.Fatalf("unexpected export %+v", export)
	}
}

func TestRedeemIsRateLimitedPerIP(t *testing.T) {
	store := &memoryRateLimitStore{attempts: make(map[string][]time.Time)}
	srv := newTestServer(t, func(d *httproutes.Dependencies) {
		d.RateLimiter = middleware.NewRateLimiter(store, zaptest.NewLogger(t))
		d.Config.RateLimit = config.RateLimitSettings{WindowDuration: time.Minute, RedeemMaxAttempts: 2}
	})
	srv.accounts.loginErr = usecase.ErrInvalidKey

	var last int
	for i := 0; i < 3; i++ {
		rr := srv.do(t, http.MethodPost, "/api/v1/recovery-key/redeem", "", map[string]string{"key_display": "JJRK-0000"})
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be rate limited, got %d", last)
	}

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": "BraveEagle", "type": "password", "password": "x",
	})
	if rr.Code == http.StatusTooManyRequests {
		t.Fatal("login must not share the redeem limit")
	}
}

func redeemFrom(t *testing.T, srv *testServer, remoteAddr, forwardedFor string) int {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"key_display": "JJRK-0000"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recovery-key/redeem", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	srv.engine.ServeHTTP(rr, req)
	return rr.Code
}

func TestRedeemLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	store := &memoryRateLimitStore{attempts: make(map[string][]time.Time)}
	srv := newTestServer(t, func(d *httproutes.Dependencies) {
		d.RateLimiter = middleware.NewRateLimiter(store, zaptest.NewLogger(t))
		d.Config.RateLimit = config.RateLimitSettings{WindowDuration: time.Minute, RedeemMaxAttempts: 2}
	})
	srv.accounts.loginErr = usecase.ErrInvalidKey

	limited := 0
	for i := 0; i < 20; i++ {
		code := redeemFrom(t, srv, "203.0.113.7:40000", fmt.Sprintf("198.51.100.%d", i+1))
		if code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 18 {
		t.Fatalf("expected 18 of 20 rotated attempts to be rate limited, got %d", limited)
	}
}

func TestRedeemLimitHonoursForwardedForFromTrustedProxy(t *testing.T) {
	store := &memoryRateLimitStore{attempts: make(map[string][]time.Time)}
	srv := newTestServer(t, func(d *httproutes.Dependencies) {
		d.RateLimiter = middleware.NewRateLimiter(store, zaptest.NewLogger(t))
		d.Config.RateLimit = config.RateLimitSettings{WindowDuration: time.Minute, RedeemMaxAttempts: 2}
		d.Config.App.TrustedProxies = []string{"10.0.0.0/8"}
	})
	srv.accounts.loginErr = usecase.ErrInvalidKey

	for i := 0; i < 2; i++ {
		redeemFrom(t, srv, "10.1.2.3:40000", "198.51.100.1")
	}
	if code := redeemFrom(t, srv, "10.1.2.3:40000", "198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected forwarded client to be limited, got %d", code)
	}
	if code := redeemFrom(t, srv, "10.1.2.3:40000", "198.51.100.2"); code == http.StatusTooManyRequests {
		t.Fatal("distinct forwarded client must get its own bucket")
	}
}

type memoryRateLimitStore struct {
	attempts map[string][]time.Time
}

func (m *memoryRateLimitStore) Window(_ context.Context, key string, window time.Duration, now time.Time) (port.AttemptWindow, error) {
	kept := m.attempts[key][:0]
	for _, at := range m.attempts[key] {
		if at.After(now.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[key] = kept

	state := port.AttemptWindow{Count: len(kept)}
	if len(kept) > 0 {
		state.Oldest = kept[0]
	}
	return state, nil
}

func (m *memoryRateLimitStore) Record(_ context.Context, key string, at time.Time, _ time.Duration) error {
	m.attempts[key] = append(m.attempts[key], at)
	return nil
}
