package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/identity"
	"github.com/lumenbank/onboarding/internal/provisioning"
)

// Locals keys set by the JWT middleware.
const (
	LocalIdentityID = "identity_id"
	LocalRole       = "role"
)

// IdentityFrom returns the authenticated identity id of the request.
func IdentityFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalIdentityID).(string)
	return id
}

// Config holds token secrets and lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// IdentityStore is the credential store surface sessions need.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (identity.Identity, error)
	BumpTokenVersion(ctx context.Context, id string) (int, error)
}

// ProfileLookup resolves the role of a provisioned identity.
type ProfileLookup interface {
	Get(ctx context.Context, identityID string) (customer.Profile, error)
}

// Principal is the authenticated caller.
type Principal struct {
	IdentityID string
	Email      string
	Role       string
	Version    int
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service issues and verifies session tokens.
type Service struct {
	cfg      Config
	ids      IdentityStore
	profiles ProfileLookup
	now      func() time.Time
}

// NewService builds the session service.
func NewService(cfg Config, ids IdentityStore, profiles ProfileLookup) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{cfg: cfg, ids: ids, profiles: profiles, now: time.Now}
}

// Login issues a token pair for an identity that already passed SignIn. The
// role is empty while the identity has no profile.
func (s *Service) Login(ctx context.Context, ident identity.Identity) (TokenPair, string, error) {
	role, err := s.roleFor(ctx, ident.ID)
	if err != nil {
		return TokenPair{}, "", err
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: ident.ID},
		Email:            ident.Email,
		Role:             role,
		Version:          ident.TokenVersion,
	}

	claims.Type = tokenTypeAccess
	access, accessExp, err := signToken(claims, []byte(s.cfg.AccessSecret), now, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, "", err
	}
	claims.Type = tokenTypeRefresh
	refresh, _, err := signToken(claims, []byte(s.cfg.RefreshSecret), now, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(accessExp.Sub(now).Seconds()),
	}, role, nil
}

func (s *Service) roleFor(ctx context.Context, identityID string) (string, error) {
	if s.profiles == nil {
		return "", nil
	}
	profile, err := s.profiles.Get(ctx, identityID)
	if errors.Is(err, provisioning.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return profile.Role, nil
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := parseToken(refreshToken, []byte(s.cfg.RefreshSecret), tokenTypeRefresh, s.now)
	if err != nil {
		return "", 0, err
	}
	ident, err := s.ids.FindByID(ctx, claims.Subject)
	if err != nil || ident.TokenVersion != claims.Version {
		return "", 0, ErrInvalidToken
	}
	// Pick up a role granted since the refresh token was issued.
	role, err := s.roleFor(ctx, ident.ID)
	if err != nil {
		return "", 0, err
	}

	now := s.now()
	access, exp, err := signToken(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: ident.ID},
		Email:            ident.Email,
		Role:             role,
		Version:          ident.TokenVersion,
		Type:             tokenTypeAccess,
	}, []byte(s.cfg.AccessSecret), now, s.cfg.AccessTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int64(exp.Sub(now).Seconds()), nil
}

// Logout invalidates all tokens of the identity.
func (s *Service) Logout(ctx context.Context, identityID string) error {
	_, err := s.ids.BumpTokenVersion(ctx, identityID)
	return err
}

// VerifyAccess checks an access token and that it has not been revoked.
func (s *Service) VerifyAccess(ctx context.Context, token string) (Principal, error) {
	claims, err := parseToken(token, []byte(s.cfg.AccessSecret), tokenTypeAccess, s.now)
	if err != nil {
		return Principal{}, err
	}
	ident, err := s.ids.FindByID(ctx, claims.Subject)
	if err != nil || ident.TokenVersion != claims.Version {
		return Principal{}, ErrInvalidToken
	}
	return Principal{IdentityID: claims.Subject, Email: claims.Email, Role: claims.Role, Version: claims.Version}, nil
}
