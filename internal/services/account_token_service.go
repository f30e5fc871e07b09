package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/motorlist/internal/models"
	"github.com/charlesng35/motorlist/internal/store"
	"github.com/charlesng35/motorlist/pkg/crypto"
	apperrors "github.com/charlesng35/motorlist/pkg/errors"
	"github.com/charlesng35/motorlist/pkg/logger"
	"github.com/charlesng35/motorlist/pkg/mail"
	"github.com/charlesng35/motorlist/pkg/metrics"
)

const (
	defaultActivationTTL = 24 * time.Hour
	defaultResetTTL      = 24 * time.Hour
	defaultResetThrottle = 30 * time.Minute
	maxMintAttempts      = 3
)

var (
	ErrAccountNotFound    = apperrors.ErrAccountNotFound
	ErrInvalidOrExpired   = apperrors.ErrTokenInvalid
	ErrThrottled          = apperrors.ErrTokenThrottled
	ErrDeliveryFailed     = apperrors.ErrDeliveryFailed
	ErrStoreUnavailable   = apperrors.ErrStoreUnavailable
	ErrCaptchaInvalid     = apperrors.ErrCaptchaInvalid
	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
	ErrAccountPending     = apperrors.ErrAccountPending
	ErrEmailTaken         = apperrors.New("EMAIL_TAKEN", "An account with this email already exists", http.StatusConflict)
)

// TokenSettings holds the token lifetimes and hashing parameters resolved from configuration.
type TokenSettings struct {
	ActivationTTL time.Duration
	ResetTTL      time.Duration
	ResetThrottle time.Duration
	TokenBytes    int
	Argon2        crypto.Argon2Parameters
}

func (s TokenSettings) withDefaults() TokenSettings {
	if s.ActivationTTL <= 0 {
		s.ActivationTTL = defaultActivationTTL
	}
	if s.ResetTTL <= 0 {
		s.ResetTTL = defaultResetTTL
	}
	if s.ResetThrottle <= 0 {
		s.ResetThrottle = defaultResetThrottle
	}
	if s.TokenBytes < crypto.MinTokenBytes {
		s.TokenBytes = crypto.MinTokenBytes
	}
	s.Argon2 = s.Argon2.WithDefaults()
	return s
}

// ActivationResult describes the outcome of an activation request.
type ActivationResult struct {
	AlreadyActive bool      `json:"already_active"`
	Reused        bool      `json:"-"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// ResetResult describes an issued password reset token.
type ResetResult struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmResult describes a successful activation.
type ConfirmResult struct {
	AlreadyActive bool `json:"already_active"`
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Captcha     string
}

// AccountTokenOption customises the AccountTokenService.
type AccountTokenOption func(*AccountTokenService)

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) AccountTokenOption {
	return func(s *AccountTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithRandom replaces the entropy source used for tokens and salts.
func WithRandom(r io.Reader) AccountTokenOption {
	return func(s *AccountTokenService) {
		if r != nil {
			s.random = r
		}
	}
}

// WithCaptcha enables captcha checks on public activation requests.
func WithCaptcha(verifier CaptchaVerifier) AccountTokenOption {
	return func(s *AccountTokenService) {
		s.captcha = verifier
	}
}

// WithLinks sets the front-end pages that activation and reset links point to.
func WithLinks(activationURL, resetURL string) AccountTokenOption {
	return func(s *AccountTokenService) {
		s.activationURL = strings.TrimSpace(activationURL)
		s.resetURL = strings.TrimSpace(resetURL)
	}
}

// AccountTokenService issues, validates and consumes activation and password reset tokens.
type AccountTokenService struct {
	stores        store.Provider
	mailer        mail.Mailer
	cfg           TokenSettings
	captcha       CaptchaVerifier
	activationURL string
	resetURL      string
	now           func() time.Time
	random        io.Reader
	log           *zap.Logger
}

// NewAccountTokenService constructs the service with its collaborators.
func NewAccountTokenService(stores store.Provider, mailer mail.Mailer, cfg TokenSettings, opts ...AccountTokenOption) (*AccountTokenService, error) {
	if stores == nil {
		return nil, errors.New("account token service: stores are required")
	}
	if mailer == nil {
		return nil, errors.New("account token service: mailer is required")
	}

	svc := &AccountTokenService{
		stores: stores,
		mailer: mailer,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		random: rand.Reader,
		log:    logger.WithModule("accounts"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates a pending account and sends its first activation email.
func (s *AccountTokenService) Register(ctx context.Context, in RegisterInput) (*models.User, ActivationResult, error) {
	if err := s.verifyCaptcha(ctx, in.Captcha); err != nil {
		return nil, ActivationResult{}, err
	}
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, ActivationResult{}, apperrors.NewBadRequest("email is required")
	}

	credential, err := s.hashCredential(in.Password)
	if err != nil {
		return nil, ActivationResult{}, err
	}

	user := &models.User{
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Status:      models.AccountPending,
	}
	if err := s.stores.Accounts().Create(ctx, user, credential); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ActivationResult{}, ErrEmailTaken
		}
		return nil, ActivationResult{}, storeUnavailable(err)
	}
	s.log.Info("account registered", zap.String("user_id", user.ID))

	result, err := s.issueActivation(ctx, user)
	return user, result, err
}

// Authenticate checks an email and password pair and requires the account to be active.
func (s *AccountTokenService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.stores.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	credential, err := s.stores.Accounts().FindCredential(ctx, user.ID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if credential == nil || !crypto.VerifyPassword(password, credential.PasswordHash, credential.PasswordSalt, s.cfg.Argon2) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, ErrAccountPending
	}
	return user, nil
}

// RequestActivation sends (or resends) the activation email for a pending account.
// An unexpired activation token is reused rather than minting another one.
func (s *AccountTokenService) RequestActivation(ctx context.Context, email, captcha string) (ActivationResult, error) {
	if err := s.verifyCaptcha(ctx, captcha); err != nil {
		return ActivationResult{}, err
	}
	user, err := s.lookup(ctx, email)
	if err != nil {
		return ActivationResult{}, err
	}
	if user == nil {
		return ActivationResult{}, ErrAccountNotFound
	}
	if user.IsActive() {
		return ActivationResult{AlreadyActive: true}, nil
	}
	return s.issueActivation(ctx, user)
}

// RequestPasswordReset mints a fresh reset token and emails it, unless one was
// issued within the throttle window.
func (s *AccountTokenService) RequestPasswordReset(ctx context.Context, email string) (ResetResult, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return ResetResult{}, err
	}
	if user == nil {
		return ResetResult{}, ErrAccountNotFound
	}

	now := s.clock()
	recent, err := s.stores.Tokens().CountRecentlyCreated(ctx, user.ID, models.PurposePasswordReset, now.Add(-s.cfg.ResetThrottle))
	if err != nil {
		return ResetResult{}, storeUnavailable(err)
	}
	if recent > 0 {
		metrics.TokenRequestsThrottled.WithLabelValues(string(models.PurposePasswordReset)).Inc()
		return ResetResult{}, ErrThrottled
	}

	token, err := s.mint(ctx, user.ID, models.PurposePasswordReset, s.cfg.ResetTTL, now)
	if err != nil {
		return ResetResult{}, err
	}
	metrics.TokensIssued.WithLabelValues(string(models.PurposePasswordReset), "fresh").Inc()

	if err := s.deliver(ctx, mail.TagPasswordReset, s.resetURL, user, token, s.cfg.ResetTTL); err != nil {
		return ResetResult{}, err
	}
	return ResetResult{ExpiresAt: token.ExpiresAt}, nil
}

// ConfirmActivation consumes an activation token and marks the account active.
// Every failure is reported as ErrInvalidOrExpired.
func (s *AccountTokenService) ConfirmActivation(ctx context.Context, email, token string) (ConfirmResult, error) {
	user, row, err := s.validate(ctx, email, token, models.PurposeActivation)
	if err != nil {
		return ConfirmResult{}, err
	}

	now := s.clock()
	err = s.stores.InTx(ctx, func(tx store.Stores) error {
		if err := consume(ctx, tx, row); err != nil {
			return err
		}
		if err := tx.Accounts().MarkActive(ctx, user.ID, now); err != nil {
			return err
		}
		_, err := tx.Tokens().DeleteAllForSubject(ctx, user.ID, models.PurposeActivation)
		return err
	})
	if err != nil {
		return ConfirmResult{}, s.confirmFailed(row.Purpose, err)
	}

	result := ConfirmResult{AlreadyActive: user.IsActive()}
	outcome := "success"
	if result.AlreadyActive {
		outcome = "already_active"
	}
	metrics.TokenConfirmations.WithLabelValues(string(row.Purpose), outcome).Inc()
	s.log.Info("account activated", zap.String("user_id", user.ID), zap.Bool("already_active", result.AlreadyActive))
	return result, nil
}

// ConfirmPasswordReset consumes a reset token and stores a new salted Argon2id hash.
func (s *AccountTokenService) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}
	user, row, err := s.validate(ctx, email, token, models.PurposePasswordReset)
	if err != nil {
		return err
	}

	credential, err := s.hashCredential(newPassword)
	if err != nil {
		return err
	}
	credential.UserID = user.ID
	credential.UpdatedAt = s.clock()

	err = s.stores.InTx(ctx, func(tx store.Stores) error {
		if err := consume(ctx, tx, row); err != nil {
			return err
		}
		if err := tx.Accounts().UpsertCredential(ctx, credential); err != nil {
			return err
		}
		_, err := tx.Tokens().DeleteAllForSubject(ctx, user.ID, models.PurposePasswordReset)
		return err
	})
	if err != nil {
		return s.confirmFailed(row.Purpose, err)
	}

	metrics.TokenConfirmations.WithLabelValues(string(row.Purpose), "success").Inc()
	s.log.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

func (s *AccountTokenService) issueActivation(ctx context.Context, user *models.User) (ActivationResult, error) {
	now := s.clock()
	token, err := s.stores.Tokens().FindActive(ctx, user.ID, models.PurposeActivation, now)
	if err != nil {
		return ActivationResult{}, storeUnavailable(err)
	}

	mode := "reused"
	if token == nil {
		mode = "fresh"
		token, err = s.mint(ctx, user.ID, models.PurposeActivation, s.cfg.ActivationTTL, now)
		if err != nil {
			return ActivationResult{}, err
		}
	}
	metrics.TokensIssued.WithLabelValues(string(models.PurposeActivation), mode).Inc()

	result := ActivationResult{Reused: mode == "reused", ExpiresAt: token.ExpiresAt}
	if err := s.deliver(ctx, mail.TagActivation, s.activationURL, user, token, token.ExpiresAt.Sub(now)); err != nil {
		return result, err
	}
	return result, nil
}

// validate resolves the subject and its token. Missing subjects, unknown or
// expired tokens and tokens of another purpose are indistinguishable to callers.
func (s *AccountTokenService) validate(ctx context.Context, email, token string, purpose models.TokenPurpose) (*models.User, *models.VerificationToken, error) {
	token = strings.TrimSpace(token)
	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || token == "" {
		metrics.TokenConfirmations.WithLabelValues(string(purpose), "invalid").Inc()
		return nil, nil, ErrInvalidOrExpired
	}

	row, err := s.stores.Tokens().FindByTokenAndSubject(ctx, token, user.ID, s.clock())
	if err != nil {
		return nil, nil, storeUnavailable(err)
	}
	if row == nil || row.Purpose != purpose {
		metrics.TokenConfirmations.WithLabelValues(string(purpose), "invalid").Inc()
		return nil, nil, ErrInvalidOrExpired
	}
	return user, row, nil
}

// consume spends the validated token inside tx. A concurrent confirm that
// already deleted it makes this one fail and roll back.
func consume(ctx context.Context, tx store.Stores, row *models.VerificationToken) error {
	ok, err := tx.Tokens().Consume(ctx, row.Token, row.SubjectID, row.Purpose)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpired
	}
	return nil
}

func (s *AccountTokenService) confirmFailed(purpose models.TokenPurpose, err error) error {
	if errors.Is(err, ErrInvalidOrExpired) {
		metrics.TokenConfirmations.WithLabelValues(string(purpose), "invalid").Inc()
		return ErrInvalidOrExpired
	}
	metrics.TokenConfirmations.WithLabelValues(string(purpose), "error").Inc()
	return storeUnavailable(err)
}

func (s *AccountTokenService) mint(ctx context.Context, subjectID string, purpose models.TokenPurpose, ttl time.Duration, now time.Time) (*models.VerificationToken, error) {
	var lastErr error
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		value, err := crypto.GenerateTokenFrom(s.random, s.cfg.TokenBytes)
		if err != nil {
			return nil, apperrors.ErrInternalServer.WithInternal(err)
		}
		token := &models.VerificationToken{
			Token:     value,
			SubjectID: subjectID,
			Purpose:   purpose,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		err = s.stores.Tokens().Put(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, storeUnavailable(err)
		}
		lastErr = err
		s.log.Warn("token collision, retrying", zap.String("purpose", string(purpose)), zap.Int("attempt", attempt+1))
	}
	return nil, storeUnavailable(fmt.Errorf("mint %s token after %d attempts: %w", purpose, maxMintAttempts, lastErr))
}

func (s *AccountTokenService) deliver(ctx context.Context, tag, baseURL string, user *models.User, token *models.VerificationToken, validFor time.Duration) error {
	msg, err := mail.Render(tag, user.Email, mail.TemplateData{
		Name:      user.DisplayName,
		Link:      buildLink(baseURL, user.Email, token.Token),
		ExpiresIn: humanDuration(validFor),
	})
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn("email delivery failed",
			zap.String("tag", tag),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return ErrDeliveryFailed.WithInternal(err)
	}
	return nil
}

func (s *AccountTokenService) lookup(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	user, err := s.stores.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return user, nil
}

func (s *AccountTokenService) verifyCaptcha(ctx context.Context, answer string) error {
	if s.captcha == nil {
		return nil
	}
	return s.captcha.Verify(ctx, answer)
}

func (s *AccountTokenService) hashCredential(password string) (*models.Credential, error) {
	salt, err := crypto.GenerateSalt(s.random)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	hash, encodedSalt, err := crypto.HashPassword(password, salt, s.cfg.Argon2)
	if err != nil {
		return nil, apperrors.NewBadRequest("password is required").WithInternal(err)
	}
	return &models.Credential{PasswordHash: hash, PasswordSalt: encodedSalt}, nil
}

func (s *AccountTokenService) clock() time.Time {
	return s.now().UTC()
}

func storeUnavailable(err error) error {
	return ErrStoreUnavailable.WithInternal(err)
}

// buildLink appends email and token query parameters to base. Without a base
// the bare token is returned.
func buildLink(base, email, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return token
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Hour:
		return plural(int(d.Round(time.Hour)/time.Hour), "hour")
	default:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
