package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// ErrAuthExpired is returned when the stored credential is expired and
// carries no refresh token, so only a new authorization flow can help.
var ErrAuthExpired = errors.New("credential expired and no refresh token available")

// Config carries everything the credential manager needs. There is no
// package-level mutable state; callers construct a Config and pass it in.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// TokenFile is the path of the persisted credential.
	TokenFile string
	// Endpoint defaults to Google's OAuth2 endpoint when zero.
	Endpoint oauth2.Endpoint
}

// DefaultConfig returns a read-only Gmail configuration. The client
// credentials come from the environment so they never live in the binary.
func DefaultConfig() Config {
	return Config{
		ClientID:     os.Getenv("MAILHARVEST_GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("MAILHARVEST_GOOGLE_CLIENT_SECRET"),
		Scopes:       []string{gmail.GmailReadonlyScope},
		TokenFile:    defaultTokenFile(),
	}
}

func defaultTokenFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "mailharvest", "google.token")
}

// storedToken is the on-disk shape of a credential.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// Manager owns credential acquisition, persistence and refresh. It is the
// only writer of the token file within a process run.
type Manager struct {
	cfg  Config
	conf *oauth2.Config

	mu sync.Mutex // guards token file writes
}

// NewManager creates a credential manager for the given configuration.
func NewManager(cfg Config) *Manager {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	const oob = "urn:ietf:wg:oauth:2.0:oob"
	return &Manager{
		cfg: cfg,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  oob,
			Scopes:       cfg.Scopes,
		},
	}
}

// HasToken reports whether a persisted credential exists.
func (m *Manager) HasToken() bool {
	_, err := os.Stat(m.cfg.TokenFile)
	return err == nil
}

// LoadOrNone reads the persisted credential. It returns (nil, nil) when
// no credential has been stored yet.
func (m *Manager) LoadOrNone() (*oauth2.Token, error) {
	raw, err := os.ReadFile(m.cfg.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", m.cfg.TokenFile, err)
	}

	return &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}, nil
}

// Persist durably stores the credential so a later process invocation
// need not repeat the authorization flow.
func (m *Manager) Persist(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       m.cfg.Scopes,
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.TokenFile), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(m.cfg.TokenFile, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// AuthCodeURL returns the URL the user must visit to grant consent. The
// browser flow itself happens outside this process.
func (m *Manager) AuthCodeURL() string {
	return m.conf.AuthCodeURL("state", oauth2.AccessTypeOffline)
}

// Authorize exchanges an authorization code for a fresh credential and
// persists it.
func (m *Manager) Authorize(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := m.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := m.Persist(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// EnsureValid returns tok unchanged if it is still valid. If it is
// expired and a refresh token is present, it performs a refresh exchange,
// persists the new state, and returns the updated credential. An expired
// credential without a refresh token fails with ErrAuthExpired.
func (m *Manager) EnsureValid(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, ErrAuthExpired
	}

	fresh, err := m.conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh credential: %w", err)
	}
	if err := m.Persist(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// TokenSource returns a source that refreshes tok as needed and persists
// every newly issued access token.
func (m *Manager) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tok, &persistingSource{
		mgr:  m,
		base: m.conf.TokenSource(ctx, tok),
	})
}

// HTTPClient returns an HTTP client whose requests carry a valid bearer
// credential, refreshing and persisting it transparently. It fails with
// ErrAuthExpired when the stored credential cannot be made valid, and
// with a plain error when no credential is stored at all.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := m.LoadOrNone()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("no stored credential; run the auth command first")
	}

	tok, err = m.EnsureValid(ctx, tok)
	if err != nil {
		return nil, err
	}

	return oauth2.NewClient(ctx, m.TokenSource(ctx, tok)), nil
}

// persistingSource wraps a refreshing token source and writes each newly
// issued token through the manager. ReuseTokenSource in front of it
// guarantees Token is only called when the cached token has expired, so
// there is exactly one durable write per successful refresh.
type persistingSource struct {
	mgr  *Manager
	base oauth2.TokenSource
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if err := s.mgr.Persist(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
