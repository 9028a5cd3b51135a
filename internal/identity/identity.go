// internal/identity/identity.go
//
// Firebase identity-provider wiring.
//
// Context
// -------
// Two consumers of `config.Settings.IdentityProviderConfig()` live here:
//
//   • Credentials – turns the service-account document into an
//     `oauth2/jwt.Config`, the token source admin calls are signed with.
//   • Verifier    – checks Firebase ID tokens presented by the mobile and
//     web clients (issuer `https://securetoken.google.com/<project>`,
//     audience `<project>`), backed by go-oidc.
//
// Neither talks to Google at construction time; keys and tokens are fetched
// lazily on first use.

package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/jwt"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

const (
	issuerPrefix = "https://securetoken.google.com/"

	// Public keys Firebase signs ID tokens with, in JWK form.
	firebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// DefaultScopes are the scopes the Firebase Admin SDK requests.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/devstorage.full_control",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// ErrNotConfigured is returned when the settings carry no Firebase project.
var ErrNotConfigured = errors.New("identity: firebase not configured")

// Credentials builds a JWT-bearer config from sa.  Scopes default to
// DefaultScopes.
func Credentials(sa config.ServiceAccount, scopes ...string) (*jwt.Config, error) {
	if sa.ProjectID == "" || sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, ErrNotConfigured
	}
	if err := checkPrivateKey(sa.PrivateKey); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &jwt.Config{
		Email:        sa.ClientEmail,
		PrivateKey:   []byte(sa.PrivateKey),
		PrivateKeyID: sa.PrivateKeyID,
		TokenURL:     sa.TokenURI,
		Scopes:       scopes,
	}, nil
}

// checkPrivateKey parses key the way oauth2/jwt will when it first signs an
// assertion, so a damaged key fails at start-up instead of on first use.
func checkPrivateKey(key string) error {
	block, _ := pem.Decode([]byte(key))
	if block == nil {
		return fmt.Errorf("identity: FIREBASE_PRIVATE_KEY is not a PEM block")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
			return fmt.Errorf("identity: FIREBASE_PRIVATE_KEY: %w", err)
		}
	}
	if _, ok := parsed.(*rsa.PrivateKey); !ok {
		return fmt.Errorf("identity: FIREBASE_PRIVATE_KEY is %T, want RSA", parsed)
	}
	return nil
}

// HealthCheck returns a check that fetches (or reuses) an access token for
// cfg.  ctx bounds the token source's HTTP client; the returned func's own
// context is ignored by oauth2.
func HealthCheck(ctx context.Context, cfg *jwt.Config) func(context.Context) error {
	ts := cfg.TokenSource(ctx)
	return func(context.Context) error {
		tok, err := ts.Token()
		if err != nil {
			return fmt.Errorf("identity: token: %w", err)
		}
		if !tok.Valid() {
			return fmt.Errorf("identity: token source returned an invalid token")
		}
		return nil
	}
}

// Token is the subset of verified ID-token claims the API uses.
type Token struct {
	UID           string
	Email         string
	EmailVerified bool
	Expiry        time.Time
}

// Verifier checks Firebase ID tokens for one project.
type Verifier struct {
	v *oidc.IDTokenVerifier
}

// NewVerifier returns a verifier for projectID.  A nil keys uses Google's
// published JWKS, fetched and cached on first Verify.
func NewVerifier(ctx context.Context, projectID string, keys oidc.KeySet) (*Verifier, error) {
	if projectID == "" {
		return nil, ErrNotConfigured
	}
	if keys == nil {
		keys = oidc.NewRemoteKeySet(ctx, firebaseJWKSURL)
	}
	return &Verifier{
		v: oidc.NewVerifier(issuerPrefix+projectID, keys, &oidc.Config{ClientID: projectID}),
	}, nil
}

// Verify checks signature, issuer, audience, and expiry of raw.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Token, error) {
	idt, err := v.v.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("identity: verify: %w", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("identity: claims: %w", err)
	}
	return &Token{
		UID:           idt.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Expiry:        idt.Expiry,
	}, nil
}
