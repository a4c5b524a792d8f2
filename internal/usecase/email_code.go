package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
	"github.com/arklim/rbac-auth-service/internal/infra/logger"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/infra/telemetry"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

const (
	defaultCodeLength   = 6
	defaultCodeValidity = 300 * time.Second
)

// EmailCodeConfig configures code generation and validity.
type EmailCodeConfig struct {
	CodeLength int
	Validity   time.Duration
}

// EmailCodeConfigFromSettings maps the email config section onto EmailCodeConfig.
func EmailCodeConfigFromSettings(cfg config.EmailSettings) EmailCodeConfig {
	return EmailCodeConfig{CodeLength: cfg.CodeLength, Validity: cfg.CodeTTL}
}

// EmailCodeDependencies groups the collaborators of EmailCodeService.
type EmailCodeDependencies struct {
	Users    port.UserRepository
	Codes    port.EmailCodeStore
	Mail     port.MailQueue
	Hasher   port.PasswordHasher
	Policy   port.PasswordPolicyValidator
	Sessions *AuthService
	Events   port.EventPublisher
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
}

// CodeRequestResult reports a generated code request. DeliveryError carries the enqueue failure, if any.
type CodeRequestResult struct {
	Email         string
	DeliveryError string
}

// EmailCodeService implements the one-time email code channel.
type EmailCodeService struct {
	cfg  EmailCodeConfig
	deps EmailCodeDependencies
	now  func() time.Time
}

// NewEmailCodeService constructs an EmailCodeService.
func NewEmailCodeService(cfg EmailCodeConfig, deps EmailCodeDependencies) *EmailCodeService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaultCodeLength
	}
	if cfg.Validity <= 0 {
		cfg.Validity = defaultCodeValidity
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &EmailCodeService{cfg: cfg, deps: deps, now: time.Now}
}

// WithClock overrides the time source.
func (s *EmailCodeService) WithClock(now func() time.Time) *EmailCodeService {
	if now != nil {
		s.now = now
	}
	return s
}

// RequestCode generates a code for a registered address, caches it and schedules delivery.
// A previously issued code for the same address is replaced.
func (s *EmailCodeService) RequestCode(ctx context.Context, email string) (CodeRequestResult, error) {
	ctx, span := tracer.Start(ctx, "EmailCodeService.RequestCode")
	defer span.End()

	result, err := s.requestCode(ctx, strings.TrimSpace(email))
	s.deps.Metrics.ObserveEmailCode("request", err)
	return result, err
}

func (s *EmailCodeService) requestCode(ctx context.Context, email string) (CodeRequestResult, error) {
	if email == "" {
		return CodeRequestResult{}, ErrEmailRequired
	}

	user, err := s.lookupUser(ctx, email)
	if err != nil {
		return CodeRequestResult{}, err
	}

	code, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return CodeRequestResult{}, fmt.Errorf("generate email code: %w", err)
	}

	record := domain.EmailCode{Email: email, Code: code, CreatedAt: s.now().UTC()}
	if err := s.deps.Codes.Save(ctx, record, s.cfg.Validity); err != nil {
		return CodeRequestResult{}, fmt.Errorf("store email code: %w", err)
	}

	result := CodeRequestResult{Email: email}
	msg := port.EmailCodeMessage{To: email, Username: user.Username, Code: code}
	if err := s.deps.Mail.EnqueueEmailCode(ctx, msg); err != nil {
		s.deps.Logger.Error("enqueue email code failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		result.DeliveryError = err.Error()
	}
	return result, nil
}

// VerifyCode checks a submitted code and consumes it on success.
func (s *EmailCodeService) VerifyCode(ctx context.Context, email, code string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "EmailCodeService.VerifyCode")
	defer span.End()

	email = strings.TrimSpace(email)
	user, err := s.verify(ctx, email, strings.TrimSpace(code))
	s.deps.Metrics.ObserveEmailCode("verify", err)
	s.deps.Metrics.ObserveLogin(LoginMethodEmailCode, err)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Codes.Delete(ctx, email); err != nil {
		return nil, fmt.Errorf("consume email code: %w", err)
	}

	now := s.now().UTC()
	if err := s.deps.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	if s.deps.Events != nil {
		event := domain.UserLoggedInEvent{
			EventID:    newEventID(),
			UserID:     user.ID,
			Username:   user.Username,
			Method:     LoginMethodEmailCode,
			LoggedInAt: now,
		}
		if err := s.deps.Events.PublishUserLoggedIn(ctx, event); err != nil {
			s.deps.Logger.Warn("publish login event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}

// ChangePassword verifies the code, stores the new password and revokes every refresh token of the user.
func (s *EmailCodeService) ChangePassword(ctx context.Context, email, code, newPassword string) error {
	ctx, span := tracer.Start(ctx, "EmailCodeService.ChangePassword")
	defer span.End()

	email = strings.TrimSpace(email)
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}

	user, err := s.verify(ctx, email, strings.TrimSpace(code))
	if err != nil {
		return err
	}

	if s.deps.Policy != nil {
		pctx := domain.PasswordContext{Username: user.Username, Email: user.Email, Phone: user.PhoneNumber}
		if err := s.deps.Policy.Validate(newPassword, pctx); err != nil {
			return fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}

	hash, err := s.deps.Hasher.Hash(newPassword)
	if err != nil {
		return recordSpanError(span, fmt.Errorf("hash password: %w", err))
	}
	if err := s.deps.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return recordSpanError(span, fmt.Errorf("update password: %w", err))
	}
	if err := s.deps.Codes.Delete(ctx, email); err != nil {
		return fmt.Errorf("consume email code: %w", err)
	}

	if s.deps.Sessions != nil {
		revoked, err := s.deps.Sessions.RevokeAllSessions(ctx, user.ID, domain.RevokeReasonPasswordChange)
		if err != nil {
			return err
		}
		s.deps.Logger.Info("password changed",
			zap.String("user_id", user.ID),
			zap.Int("revoked_refresh_tokens", revoked),
		)
	}
	return nil
}

func (s *EmailCodeService) verify(ctx context.Context, email, code string) (*domain.User, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	if code == "" {
		return nil, ErrCodeRequired
	}

	record, err := s.deps.Codes.Get(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotSent
		}
		return nil, fmt.Errorf("load email code: %w", err)
	}

	if s.now().Sub(record.CreatedAt) > s.cfg.Validity {
		return nil, ErrCodeExpired
	}
	if !security.CodesEqual(record.Code, code) {
		return nil, ErrCodeMismatch
	}

	return s.lookupUser(ctx, email)
}

func (s *EmailCodeService) lookupUser(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}
