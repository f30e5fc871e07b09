package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/api"
	"github.com/charlesng35/motorlist/internal/app"
	iauth "github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/cache"
	sharedtestutil "github.com/charlesng35/motorlist/internal/database/testutil"
	"github.com/charlesng35/motorlist/internal/services"
	"github.com/charlesng35/motorlist/internal/store"
	"github.com/charlesng35/motorlist/pkg/crypto"
	"github.com/charlesng35/motorlist/pkg/mail"
	"github.com/charlesng35/motorlist/pkg/response"
)

// InternalToken is the scheduler credential configured on every Env.
const InternalToken = "test-internal-token"

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]+)`)

// RecordingMailer captures outgoing messages and can be told to fail.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	failWith error
}

// Send records msg, or returns the configured failure without recording.
func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, msg)
	return nil
}

// FailWith makes subsequent sends return err; nil restores delivery.
func (m *RecordingMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Messages returns a copy of everything delivered so far.
func (m *RecordingMailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// LastToken extracts the token from the newest message carrying tag.
func (m *RecordingMailer) LastToken(t *testing.T, tag string) string {
	t.Helper()
	msgs := m.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Tag != tag {
			continue
		}
		match := tokenPattern.FindStringSubmatch(msgs[i].HTMLBody)
		require.Len(t, match, 2, "no token link in %s email", tag)
		return match[1]
	}
	t.Fatalf("no %s email was sent", tag)
	return ""
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Mailer *RecordingMailer
	Config *app.Config
	Search *services.SearchBatchService
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithCaptcha enables the captcha check with the given answer.
func WithCaptcha(answer string) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.Captcha = app.CaptchaConfig{Enabled: true, Answer: answer}
	}
}

// WithRateLimit sets the auth route limiter.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.RateLimit = app.RateLimitSettings{Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Email: app.EmailConfig{
			ActivationURL: "https://motorlist.test/activate",
			ResetURL:      "https://motorlist.test/reset",
		},
		Scheduler: app.SchedulerConfig{InternalToken: InternalToken},
		Batch:     app.BatchConfig{MaxItems: 10},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	stores, err := store.NewGorm(db)
	require.NoError(t, err)

	mailer := &RecordingMailer{}
	settings := cfg.Auth.TokenSettings()
	settings.Argon2 = crypto.Argon2Parameters{Time: 1, Memory: 64, Threads: 1, KeyLength: 32}

	tokenOpts := []services.AccountTokenOption{
		services.WithLinks(cfg.Email.ActivationURL, cfg.Email.ResetURL),
	}
	if verifier := cfg.Auth.CaptchaVerifier(); verifier != nil {
		tokenOpts = append(tokenOpts, services.WithCaptcha(verifier))
	}
	tokens, err := services.NewAccountTokenService(stores, mailer, settings, tokenOpts...)
	require.NoError(t, err)

	cacheStore := cache.NewDatabaseStore(db)
	processor, err := services.NewLocalProcessor(cacheStore)
	require.NoError(t, err)
	search, err := services.NewSearchBatchService(db, processor, services.WithMaxBatchItems(cfg.Batch.MaxItems))
	require.NoError(t, err)

	router, err := api.NewRouter(db, cfg, jwtSvc, api.Services{
		Tokens:   tokens,
		Accounts: stores.Accounts(),
		Search:   search,
		Cache:    cacheStore,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Mailer: mailer,
		Config: cfg,
		Search: search,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Do(method, path, body, map[string]string{"Authorization": bearer(token)})
}

// Do executes a request with arbitrary headers. Empty header values are skipped.
func (e *Env) Do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Register creates an account through the API and returns the activation token emailed to it.
func (e *Env) Register(email, password string) string {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())
	return e.Mailer.LastToken(e.T, mail.TagActivation)
}

// RegisterActive creates an account and activates it.
func (e *Env) RegisterActive(email, password string) {
	e.T.Helper()

	token := e.Register(email, password)
	w := e.Request(http.MethodPost, "/api/auth/activation/confirm", map[string]string{
		"email": email,
		"token": token,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Status string `json:"status"`
	} `json:"user"`
}

// Login authenticates and returns the issued access token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Greater(e.T, result.ExpiresIn, 0)
	return result
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
