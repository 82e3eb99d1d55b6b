package utils // package utils provides the token codec and hashing helpers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures.  Callers treat both the same way (fall back to
// the refresh flow or send the user to login) but they are kept apart
// for logging and tests.
var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// AccessToken represents a signed access token along with its expiry.
// Access tokens are short lived and travel in the access_token cookie.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived signed token used only to obtain a
// new token pair.  Raw is returned to the client; the database only
// ever sees a hash of it.
type RefreshToken struct {
	Raw string    // serialized JWT returned to the client
	Exp time.Time // UTC expiration time
}

// AccessClaims is the access token payload.  Permissions is a UI hint
// and is never used to grant access on its own.
type AccessClaims struct {
	RoleID      string   `json:"roleId"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh token payload: subject only.  The jti
// keeps two tokens minted in the same second for the same user distinct.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// AccessPayload is the verified content of an access token.
type AccessPayload struct {
	UserID      string
	RoleID      string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// RefreshPayload is the verified content of a refresh token.
type RefreshPayload struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CodecConfig configures a TokenCodec.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenCodec signs and verifies the access/refresh pair.  Each token type
// has its own secret so a leaked refresh secret cannot forge access
// tokens and the other way round.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenCodec validates the configuration and returns a codec.  The two
// secrets must be present and different.
func NewTokenCodec(cfg CodecConfig) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// SetClock replaces the time source.  Tests use it to pin expiry edges.
func (c *TokenCodec) SetClock(now func() time.Time) { c.now = now }

// RefreshTTL reports the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccessToken builds and signs an HS256 access token carrying the
// user's role id and flattened permission keys.
func (c *TokenCodec) SignAccessToken(userID, roleID string, permissions []string) (AccessToken, error) {
	now := c.now().UTC()
	exp := now.Add(c.accessTTL)
	if permissions == nil {
		permissions = []string{}
	}
	claims := AccessClaims{
		RoleID:           roleID,
		Permissions:      permissions,
		RegisteredClaims: c.registered(userID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: claims.ExpiresAt.Time}, nil
}

// SignRefreshToken signs a refresh token for userID.  It carries no role
// or permission claims.
func (c *TokenCodec) SignRefreshToken(userID string) (RefreshToken, error) {
	now := c.now().UTC()
	exp := now.Add(c.refreshTTL)
	claims := RefreshClaims{RegisteredClaims: c.registered(userID, now, exp)}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return RefreshToken{Raw: signed, Exp: claims.ExpiresAt.Time}, nil
}

// VerifyAccessToken checks signature, issuer, audience and expiry using
// the access secret.
func (c *TokenCodec) VerifyAccessToken(token string) (AccessPayload, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.accessSecret); err != nil {
		return AccessPayload{}, err
	}
	return AccessPayload{
		UserID:      claims.Subject,
		RoleID:      claims.RoleID,
		Permissions: claims.Permissions,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// VerifyRefreshToken is VerifyAccessToken for the refresh secret.
func (c *TokenCodec) VerifyRefreshToken(token string) (RefreshPayload, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.refreshSecret); err != nil {
		return RefreshPayload{}, err
	}
	return RefreshPayload{
		UserID:    claims.Subject,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *TokenCodec) registered(userID string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

// parse verifies token into claims.  Only HS256 is accepted; any other
// algorithm, including "none", is rejected before the key is handed out.
func (c *TokenCodec) parse(token string, claims jwt.Claims, secret []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return ErrTokenInvalid
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return ErrTokenInvalid
	}
	return nil
}
