// internal/config/views.go
//
// Derived configuration views.
//
// Context
// -------
// Each view reshapes the flat settings into the input one collaborator
// expects: the SQL pool (`internal/database`), the cache store
// (`internal/cache`), and the identity provider (`internal/identity`).
// Views are pure; calling them repeatedly yields equal values.

package config

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Fixed Google OAuth endpoints embedded in every service-account document.
const (
	GoogleAuthURI         = "https://accounts.google.com/o/oauth2/auth"
	GoogleTokenURI        = "https://oauth2.googleapis.com/token"
	GoogleCertsURL        = "https://www.googleapis.com/oauth2/v1/certs"
	serviceAccountType    = "service_account"
	cacheStoreIOTimeout   = 5 * time.Second
	cacheStoreDialTimeout = 5 * time.Second
)

// DatabaseOptions is the pool shape consumed by internal/database.
type DatabaseOptions struct {
	PoolSize    int
	MaxOverflow int
	PoolTimeout time.Duration
	PoolRecycle time.Duration
	PoolPrePing bool
	Echo        bool
}

// ServiceAccount mirrors Google's service-account JSON document.
type ServiceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// JSON encodes the document the way Google SDKs read credential files.
func (sa ServiceAccount) JSON() ([]byte, error) {
	return json.Marshal(sa)
}

// CacheStoreOptions is the client shape consumed by internal/cache.
type CacheStoreOptions struct {
	URL             string
	Password        string
	DB              int
	DecodeResponses bool
	ConnectTimeout  time.Duration
	SocketTimeout   time.Duration
	RetryOnTimeout  bool
}

// IsDevelopment reports whether the development tier is active.
func (s *Settings) IsDevelopment() bool { return s.Environment == Development }

// IsProduction reports whether the production tier is active.
func (s *Settings) IsProduction() bool { return s.Environment == Production }

// DatabaseConfig returns the pool view.  Echo is on only for debug builds in
// development.
func (s *Settings) DatabaseConfig() DatabaseOptions {
	return DatabaseOptions{
		PoolSize:    s.PoolSize,
		MaxOverflow: s.MaxOverflow,
		PoolTimeout: time.Duration(s.PoolTimeout) * time.Second,
		PoolRecycle: time.Duration(s.PoolRecycle) * time.Second,
		PoolPrePing: true,
		Echo:        s.Debug && s.IsDevelopment(),
	}
}

// IdentityProviderConfig returns the Firebase service-account document with
// the private key's literal `\n` escapes turned into newlines.
func (s *Settings) IdentityProviderConfig() ServiceAccount {
	return ServiceAccount{
		Type:                    serviceAccountType,
		ProjectID:               s.ProjectID,
		PrivateKeyID:            s.PrivateKeyID,
		PrivateKey:              strings.ReplaceAll(s.PrivateKey, `\n`, "\n"),
		ClientEmail:             s.ClientEmail,
		ClientID:                s.ClientID,
		AuthURI:                 GoogleAuthURI,
		TokenURI:                GoogleTokenURI,
		AuthProviderX509CertURL: GoogleCertsURL,
		ClientX509CertURL:       s.ClientX509CertURL,
	}
}

// CacheStoreConfig returns the cache-store view.
func (s *Settings) CacheStoreConfig() CacheStoreOptions {
	return CacheStoreOptions{
		URL:             s.Redis.URL,
		Password:        s.Redis.Password,
		DB:              s.Redis.DB,
		DecodeResponses: true,
		ConnectTimeout:  cacheStoreDialTimeout,
		SocketTimeout:   cacheStoreIOTimeout,
		RetryOnTimeout:  true,
	}
}

// LogSafeDatabaseURL returns DATABASE_URL with any password replaced by
// "xxxxx".  Unparseable URLs are reduced to their scheme.
func (s *Settings) LogSafeDatabaseURL() string {
	u, err := url.Parse(s.Database.URL)
	if err != nil {
		scheme, _, _ := strings.Cut(s.Database.URL, "://")
		return scheme + "://…"
	}
	return u.Redacted()
}
