package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/guard"
	"github.com/teamspace/backend/pkg/apperr"
)

// AccessTokenTTL is the fixed lifetime of an access token.
const AccessTokenTTL = 15 * time.Minute

var (
	ErrInvalidToken = apperr.Unauthorized("invalid token")
	ErrTokenExpired = apperr.Unauthorized("token expired")
)

// Claims holds access token claims. Organization and role are present only
// after an organization has been selected.
type Claims struct {
	OrganizationID *uuid.UUID `json:"org_id,omitempty"`
	RoleName       string     `json:"role,omitempty"`
	SessionID      uuid.UUID  `json:"sid"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// HasOrganization reports whether the token carries organization context.
func (c *Claims) HasOrganization() bool {
	return c.OrganizationID != nil && c.RoleName != ""
}

// AccessGrant describes the contents of an access token to issue.
type AccessGrant struct {
	UserID         uuid.UUID
	SessionID      uuid.UUID
	OrganizationID *uuid.UUID
	RoleName       string
}

// JWTService handles access token generation and validation.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a JWT service signing with HS256.
func NewJWTService(secret, issuer string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    AccessTokenTTL,
		now:    time.Now,
	}
}

// WithClock returns a copy of s that reads time from now.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	cp := *s
	cp.now = now
	return &cp
}

// Issue signs a new access token for g and returns it with its expiry.
func (s *JWTService) Issue(g AccessGrant) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)
	claims := Claims{
		SessionID: g.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   g.UserID.String(),
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}
	if g.OrganizationID != nil && g.RoleName != "" {
		orgID := *g.OrganizationID
		claims.OrganizationID = &orgID
		claims.RoleName = g.RoleName
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token. It returns ErrTokenExpired for
// well-formed expired tokens and ErrInvalidToken for everything else.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken validates token and converts its claims to a guard principal.
func (s *JWTService) VerifyAccessToken(token string) (*guard.Principal, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()
	p := &guard.Principal{UserID: userID, SessionID: claims.SessionID}
	if claims.HasOrganization() {
		orgID := *claims.OrganizationID
		p.OrganizationID = &orgID
		p.RoleName = claims.RoleName
	}
	return p, nil
}
