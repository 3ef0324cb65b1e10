package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultAuthURI  = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
)

// ClientCredentials identify the installed-app OAuth client.
type ClientCredentials struct {
	ClientID     string
	ProjectID    string
	ClientSecret string
}

type installedClient struct {
	ClientID     string   `json:"client_id"`
	ProjectID    string   `json:"project_id"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
}

// OAuthConfig builds the oauth2 configuration the same way a downloaded
// client_secret.json would, so Google's installed-app defaults apply.
func (c ClientCredentials) OAuthConfig(scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	raw, err := json.Marshal(map[string]installedClient{
		"installed": {
			ClientID:     c.ClientID,
			ProjectID:    c.ProjectID,
			AuthURI:      defaultAuthURI,
			TokenURI:     defaultTokenURI,
			ClientSecret: c.ClientSecret,
			RedirectURIs: []string{"http://localhost"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode client config: %w", err)
	}

	conf, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to build OAuth config: %w", err)
	}
	return conf, nil
}

// TokenCache persists a single OAuth token as JSON.
type TokenCache struct {
	path string
}

// NewTokenCache returns a cache backed by the file at path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Path returns the cache file location.
func (c *TokenCache) Path() string {
	return c.path
}

// Exists reports whether a cache file is present.
func (c *TokenCache) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Load reads the cached token. A missing file yields an error matching
// fs.ErrNotExist.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", c.path, err)
	}
	return &tok, nil
}

// Save writes tok to the cache, creating the parent directory with 0700
// and the file with 0600. The write goes through a temporary file so an
// interrupted run never leaves a truncated token behind.
func (c *TokenCache) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("refusing to cache a nil token")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// IsTerminal checks if stdin is connected to a terminal (CLI mode)
func IsTerminal() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
