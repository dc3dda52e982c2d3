package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/scholara/account-service/internal/config"
	"github.com/scholara/account-service/internal/handler"
	"github.com/scholara/account-service/internal/metrics"
	"github.com/scholara/account-service/internal/middleware"
	"github.com/scholara/account-service/internal/model"
	"github.com/scholara/account-service/internal/repository"
	"github.com/scholara/account-service/internal/service"
	"github.com/scholara/account-service/internal/token"
)

// captureNotifier records issued codes so the test can submit them.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureNotifier) SendCode(ctx context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[email] = code
	return nil
}

func (c *captureNotifier) codeFor(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

type env struct {
	db     *sqlx.DB
	repo   repository.UserRepository
	svc    service.AuthService
	notif  *captureNotifier
	server *httptest.Server
}

func setup(t *testing.T) *env {
	t.Helper()

	cfg, err := config.LoadConfig("../../configs")
	require.NoError(t, err)

	pg := cfg.Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("postgres not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Recreate the users table afresh for a clean test state.
	_, err = db.Exec(`DROP TABLE IF EXISTS users;`)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			credential_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			pending_code TEXT,
			pending_code_expiry TIMESTAMPTZ,
			role TEXT NOT NULL DEFAULT 'standard',
			coin_balance BIGINT NOT NULL DEFAULT 0 CHECK (coin_balance >= 0),
			referral_count BIGINT NOT NULL DEFAULT 0 CHECK (referral_count >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active_at TIMESTAMPTZ,
			CHECK ((pending_code IS NULL) = (pending_code_expiry IS NULL)),
			CHECK (status <> 'verified' OR pending_code IS NULL)
		);
	`)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE UNIQUE INDEX users_username_verified_idx
			ON users (username) WHERE status = 'verified';
	`)
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	notif := &captureNotifier{codes: map[string]string{}}
	repo := repository.NewUserRepository(db)
	tokens := token.NewIssuer([]byte("integration-test-secret"))
	svc := service.NewAuthService(
		repo, repository.NewNoopCooldownStore(), notif, tokens,
		metrics.New(prometheus.NewRegistry()), logger,
		service.Options{
			CodeTTL:        10 * time.Minute,
			ResendCooldown: time.Minute,
			TokenExpiry:    time.Hour,
			LoginExpiry:    24 * time.Hour,
			AdminSetupKey:  "integration-setup-key",
		},
	)

	r := chi.NewRouter()
	handler.NewAuthHandler(svc, logger).Register(r, middleware.RequireAuth(logger, tokens))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &env{db: db, repo: repo, svc: svc, notif: notif, server: srv}
}

func (e *env) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

// TestIntegration_RegistrationFlow walks the full pipeline over real HTTP and
// postgres: issue a code, fail with a wrong code, verify, collide on a
// duplicate verification, then log in.
func TestIntegration_RegistrationFlow(t *testing.T) {
	e := setup(t)

	// Issue a code.
	resp, _ := e.post(t, "/api/auth/otp", map[string]string{"email": "b@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := e.notif.codeFor("b@x.com")
	require.Len(t, code, 6)

	// Wrong code is rejected and nothing changes.
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	resp, _ = e.post(t, "/api/auth/verify-otp", map[string]string{
		"username": "bella", "email": "b@x.com", "password": "secret1", "otp": wrong,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var status string
	require.NoError(t, e.db.Get(&status, "SELECT status FROM users WHERE email = $1", "b@x.com"))
	assert.Equal(t, "pending", status)

	// Correct code activates the account.
	resp, body := e.post(t, "/api/auth/verify-otp", map[string]string{
		"username": "bella", "email": "b@x.com", "password": "secret1", "otp": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok string
	require.NoError(t, json.Unmarshal(body["token"], &tok))
	assert.NotEmpty(t, tok)

	var u model.User
	require.NoError(t, e.db.Get(&u,
		"SELECT id, email, username, credential_hash, status, pending_code, pending_code_expiry, role, coin_balance, referral_count, created_at, last_active_at FROM users WHERE email = $1",
		"b@x.com"))
	assert.Equal(t, model.StatusVerified, u.Status)
	assert.Equal(t, "bella", u.Username)
	assert.Nil(t, u.PendingCode)
	assert.Nil(t, u.PendingCodeExpiry)

	// A second verification attempt dies at the conflict guard.
	resp, _ = e.post(t, "/api/auth/verify-otp", map[string]string{
		"username": "bella", "email": "b@x.com", "password": "secret1", "otp": code,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// And login works with the finalized credential.
	resp, body = e.post(t, "/api/auth/login", map[string]string{
		"email": "b@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body["token"], &tok))
	assert.NotEmpty(t, tok)

	// The bearer credential opens the profile endpoint.
	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	meResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusOK, meResp.StatusCode)
}

// TestIntegration_ReferralCredit checks the cross-record transactional write:
// activating a referred account credits the referrer exactly once.
func TestIntegration_ReferralCredit(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	referrer, err := e.repo.CreateVerified(ctx, "ref@x.com", "referrer", "hash", model.RoleStandard)
	require.NoError(t, err)

	resp, _ := e.post(t, "/api/auth/otp", map[string]string{"email": "newbie@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.post(t, "/api/auth/verify-otp", map[string]string{
		"username": "newbie", "email": "newbie@x.com", "password": "secret1",
		"otp": e.notif.codeFor("newbie@x.com"), "referralId": referrer.ID.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var balance, count int64
	require.NoError(t, e.db.QueryRow(
		"SELECT coin_balance, referral_count FROM users WHERE id = $1", referrer.ID,
	).Scan(&balance, &count))
	assert.Equal(t, int64(50), balance)
	assert.Equal(t, int64(1), count)
}

// TestIntegration_ConcurrentVerification races two identical verification
// requests: exactly one may succeed, the other must fail with a conflict or
// a serialization failure, and the referrer is credited exactly once.
func TestIntegration_ConcurrentVerification(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	referrer, err := e.repo.CreateVerified(ctx, "ref2@x.com", "referrer2", "hash", model.RoleStandard)
	require.NoError(t, err)

	resp, _ := e.post(t, "/api/auth/otp", map[string]string{"email": "raced@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := e.notif.codeFor("raced@x.com")

	results := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]string{
				"username": "raced", "email": "raced@x.com", "password": "secret1",
				"otp": code, "referralId": referrer.ID.String(),
			})
			resp, err := http.Post(e.server.URL+"/api/auth/verify-otp", "application/json", bytes.NewReader(payload))
			if err != nil {
				results <- 0
				return
			}
			resp.Body.Close()
			results <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for status := range results {
		switch {
		case status == http.StatusOK:
			successes++
		case status == http.StatusConflict || status == http.StatusInternalServerError:
			failures++
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	assert.Equal(t, 1, successes, "exactly one verification may win")
	assert.Equal(t, 1, failures)

	var balance, count int64
	require.NoError(t, e.db.QueryRow(
		"SELECT coin_balance, referral_count FROM users WHERE id = $1", referrer.ID,
	).Scan(&balance, &count))
	assert.Equal(t, int64(50), balance, "referral reward applies exactly once")
	assert.Equal(t, int64(1), count)
}
