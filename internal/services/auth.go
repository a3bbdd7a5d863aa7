package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// AuthService guards the household: one shared access code exchanged for a
// signed session token. There is no per-user identity; the household is the
// tenant.
type AuthService interface {
	Login(ctx context.Context, accessCode string) (token string, expiresAt time.Time, err error)
	Verify(ctx context.Context, token string) error
}

type authService struct {
	log       *logger.Logger
	codeHash  []byte
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(log *logger.Logger) (AuthService, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}

	codeHash := strings.TrimSpace(os.Getenv("HOUSEHOLD_ACCESS_CODE_HASH"))
	if codeHash == "" {
		code := strings.TrimSpace(os.Getenv("HOUSEHOLD_ACCESS_CODE"))
		if code == "" {
			return nil, fmt.Errorf("missing HOUSEHOLD_ACCESS_CODE or HOUSEHOLD_ACCESS_CODE_HASH")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash access code: %w", err)
		}
		codeHash = string(hashed)
	}

	ttl := time.Duration(envutil.Int("AUTH_TOKEN_TTL_HOURS", 72)) * time.Hour
	return &authService{
		log:       log.With("service", "AuthService"),
		codeHash:  []byte(codeHash),
		jwtSecret: []byte(secret),
		tokenTTL:  ttl,
	}, nil
}

func (s *authService) Login(_ context.Context, accessCode string) (string, time.Time, error) {
	if err := bcrypt.CompareHashAndPassword(s.codeHash, []byte(strings.TrimSpace(accessCode))); err != nil {
		return "", time.Time{}, fmt.Errorf("access code rejected: %w", apperrors.ErrInvalidArgument)
	}

	expiresAt := time.Now().UTC().Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub": "household",
		"iat": time.Now().UTC().Unix(),
		"exp": expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	s.log.Info("household session opened", "expires_at", expiresAt.Format(time.RFC3339))
	return token, expiresAt, nil
}

func (s *authService) Verify(_ context.Context, token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid session token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid session token")
	}
	return nil
}
