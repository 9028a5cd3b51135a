// internal/auth/tokens.go
//
// HS256 access and refresh tokens signed with SECRET_KEY.
//
// Context
// -------
// Clients exchange a verified Firebase ID token for an API token pair
// (see internal/server).  Access tokens live ACCESS_TOKEN_EXPIRE_MINUTES,
// refresh tokens REFRESH_TOKEN_EXPIRE_DAYS.  A `typ` claim keeps one kind
// from being replayed as the other.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

// Kind distinguishes access from refresh tokens.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// ErrWrongKind is returned when a token of one Kind is presented as another.
var ErrWrongKind = errors.New("auth: wrong token kind")

// Claims are the registered claims plus the token kind.
type Claims struct {
	Kind Kind `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and parses API tokens.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer builds an Issuer from the API settings.
func NewIssuer(s *config.Settings) *Issuer {
	return &Issuer{
		secret:     []byte(s.SecretKey),
		issuer:     s.App.Name,
		accessTTL:  time.Duration(s.AccessTokenExpireMinutes) * time.Minute,
		refreshTTL: time.Duration(s.RefreshTokenExpireDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// Pair is what the token endpoints return.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// IssuePair signs a fresh access/refresh pair for subject.
func (i *Issuer) IssuePair(subject string) (Pair, error) {
	at, err := i.sign(subject, Access, i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	rt, err := i.sign(subject, Refresh, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  at,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int(i.accessTTL / time.Second),
	}, nil
}

func (i *Issuer) sign(subject string, kind Kind, ttl time.Duration) (string, error) {
	now := i.now()
	c := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", kind, err)
	}
	return s, nil
}

// Parse verifies raw and checks it is of the wanted kind.
func (i *Issuer) Parse(raw string, want Kind) (*Claims, error) {
	c := &Claims{}
	_, err := jwt.ParseWithClaims(raw, c,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if c.Kind != want {
		return nil, ErrWrongKind
	}
	return c, nil
}
