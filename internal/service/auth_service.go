package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scholara/account-service/internal/apperr"
	"github.com/scholara/account-service/internal/metrics"
	"github.com/scholara/account-service/internal/model"
	"github.com/scholara/account-service/internal/notifier"
	"github.com/scholara/account-service/internal/repository"
	"github.com/scholara/account-service/internal/token"
)

const referralReward = 50

// VerifyInput carries the submitted code plus the final account fields.
type VerifyInput struct {
	Email      string
	Code       string
	Username   string
	Password   string
	ReferralID string
}

// AdminSetupInput bootstraps the first admin account.
type AdminSetupInput struct {
	Email     string
	Username  string
	Password  string
	SecretKey string
}

// AuthResult is a freshly issued session credential plus the public view of
// the identity it belongs to.
type AuthResult struct {
	Token string
	User  model.PublicUser
}

// AuthService defines the business logic of the registration pipeline.
type AuthService interface {
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, in VerifyInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.PublicUser, error)
	SetupAdmin(ctx context.Context, in AdminSetupInput) (*model.PublicUser, error)
}

// Options holds the tunables of the pipeline; all durations come from config
// so tests can shrink them.
type Options struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	TokenExpiry    time.Duration
	LoginExpiry    time.Duration
	AdminSetupKey  string
}

type authService struct {
	repo     repository.UserRepository
	cooldown repository.CooldownStore
	notifier notifier.Notifier
	tokens   *token.Issuer
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	opts     Options
}

// NewAuthService constructs a new AuthService. All collaborators are explicit
// dependencies; nothing is read from ambient process state.
func NewAuthService(
	repo repository.UserRepository,
	cooldown repository.CooldownStore,
	notif notifier.Notifier,
	tokens *token.Issuer,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
	opts Options,
) AuthService {
	return &authService{
		repo:     repo,
		cooldown: cooldown,
		notifier: notif,
		tokens:   tokens,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// RequestCode issues a fresh one-time code for the email and hands it to the
// notifier. Repeated requests before expiry overwrite the prior code, so at
// most one valid code exists at a time. A failed delivery does not roll the
// stored code back; a resend simply repeats the procedure.
func (s *authService) RequestCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	// 1. A verified identity never re-enters the pipeline.
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u != nil && u.Verified() {
		return apperr.ErrAlreadyVerified
	}

	// 2. Resend throttle.
	ok, err := s.cooldown.Acquire(ctx, email, s.opts.ResendCooldown)
	if err != nil {
		// The throttle is best-effort; a broken redis must not block signups.
		s.logger.Warnw("cooldown store unavailable, allowing send", "error", err)
	} else if !ok {
		return apperr.ErrCooldown
	}

	// 3. Create the pending record on first contact. The placeholder username
	//    and unusable credential are overwritten atomically at activation.
	if u == nil {
		placeholder := "user_" + uuid.NewString()[:8]
		u, err = s.repo.CreatePending(ctx, email, placeholder, unusableCredential())
		if err != nil {
			return err
		}
	}

	// 4. Attach a fresh code with a fixed validity window.
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}
	expiry := time.Now().UTC().Add(s.opts.CodeTTL)
	if err := s.repo.SavePendingCode(ctx, u.ID, code, expiry); err != nil {
		return err
	}
	s.metrics.CodesIssued.Inc()

	// 5. Fire-and-forget delivery.
	if err := s.notifier.SendCode(ctx, email, code); err != nil {
		s.logger.Warnw("verification code delivery failed", "email", email, "error", err)
	}
	return nil
}

// VerifyCode attempts the single atomic transition from pending to verified.
// Validation, activation and the optional referral credit all happen inside
// one transaction; every rejection aborts before any write. The session
// credential is issued strictly after the commit, so a signing failure can
// never roll activation back.
func (s *authService) VerifyCode(ctx context.Context, in VerifyInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	referrerID, hasReferrer := parseReferralID(in.ReferralID)

	var (
		activated model.User
		credited  bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.ErrNotFound
		}
		// Only the first committer can pass this guard; it is what makes
		// concurrent duplicate verifications and double referral credits
		// impossible.
		if u.Verified() {
			return apperr.ErrAlreadyVerified
		}
		if u.PendingCode == nil {
			return apperr.ErrNoPendingCode
		}
		now := time.Now().UTC()
		if u.CodeExpired(now) {
			return apperr.ErrCodeExpired
		}
		if *u.PendingCode != in.Code {
			return apperr.ErrCodeInvalid
		}
		taken, err := s.repo.UsernameTaken(ctx, in.Username, u.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrUsernameTaken
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		if err := s.repo.Activate(ctx, u.ID, in.Username, string(hashed), now); err != nil {
			return err
		}

		if hasReferrer {
			ref, err := s.repo.GetByIDForUpdate(ctx, referrerID)
			if err != nil {
				return err
			}
			// A stale or unknown referral id is ignored rather than failing
			// the signup.
			if ref != nil {
				if err := s.repo.CreditReferrer(ctx, ref.ID, referralReward); err != nil {
					return err
				}
				credited = true
			}
		}

		activated = *u
		activated.Username = in.Username
		activated.CredentialHash = string(hashed)
		activated.Status = model.StatusVerified
		activated.PendingCode = nil
		activated.PendingCodeExpiry = nil
		activated.LastActiveAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Activations.Inc()
	if credited {
		s.metrics.ReferralCredits.Inc()
	}

	jwtStr, err := s.tokens.Issue(activated.ID, []string{string(activated.Role)}, s.opts.TokenExpiry)
	if err != nil {
		// The activation has already committed; surface the signing failure
		// without touching the record.
		return nil, err
	}
	return &AuthResult{Token: jwtStr, User: activated.Public()}, nil
}

// Login verifies email+password against a verified identity and returns a
// longer-lived session credential.
func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.CredentialHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if !u.Verified() {
		return nil, apperr.ErrNotVerified
	}

	jwtStr, err := s.tokens.Issue(u.ID, []string{string(u.Role)}, s.opts.LoginExpiry)
	if err != nil {
		return nil, err
	}
	s.metrics.Logins.Inc()

	if err := s.repo.TouchLastActive(ctx, u.ID, time.Now().UTC()); err != nil {
		s.logger.Warnw("failed to stamp last activity", "user", u.ID, "error", err)
	}
	return &AuthResult{Token: jwtStr, User: u.Public()}, nil
}

// GetUser returns the public profile of an authenticated identity.
func (s *authService) GetUser(ctx context.Context, id uuid.UUID) (*model.PublicUser, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.ErrNotFound
	}
	pub := u.Public()
	return &pub, nil
}

// SetupAdmin creates the initial admin account. The route locks itself once
// any admin exists.
func (s *authService) SetupAdmin(ctx context.Context, in AdminSetupInput) (*model.PublicUser, error) {
	if s.opts.AdminSetupKey == "" || in.SecretKey != s.opts.AdminSetupKey {
		return nil, fmt.Errorf("%w: invalid or missing secret key", apperr.ErrForbidden)
	}
	exists, err := s.repo.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: an admin account already exists", apperr.ErrForbidden)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}
	u, err := s.repo.CreateVerified(ctx, normalizeEmail(in.Email), in.Username, string(hashed), model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// unusableCredential returns a placeholder that can never match a bcrypt
// comparison, so a pending account cannot be logged into.
func unusableCredential() string {
	return "unset:" + uuid.NewString()
}

// parseReferralID resolves the optional referral id; anything unparsable is
// treated as absent.
func parseReferralID(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
