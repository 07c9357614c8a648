// Package auth models the opaque credentials used to authenticate with
// the mail provider: either an app password or an OAuth2 token pair.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// Kind selects the authentication mechanism.
type Kind string

const (
	KindPassword Kind = "password"
	KindOAuth2   Kind = "oauth2"
)

// Credentials is a serializable credentials value passed to every
// collaborator that needs provider access. It carries explicit fields
// instead of an ad-hoc blob.
type Credentials struct {
	Kind         Kind      `json:"kind"`
	Username     string    `json:"username"`
	Password     string    `json:"password,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURL     string    `json:"token_url,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// LoadFile reads credentials from a JSON file. Missing or unreadable
// files fail hard: there is no anonymous submission.
func LoadFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveFile persists credentials with owner-only permissions.
func (c *Credentials) SaveFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Validate checks that the credentials carry what their kind requires.
func (c *Credentials) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("credentials username is required")
	}
	switch c.Kind {
	case KindPassword:
		if c.Password == "" {
			return fmt.Errorf("password credentials require a password")
		}
	case KindOAuth2:
		if c.AccessToken == "" && c.RefreshToken == "" {
			return fmt.Errorf("oauth2 credentials require an access or refresh token")
		}
	default:
		return fmt.Errorf("unknown credentials kind %q", c.Kind)
	}
	return nil
}

// CleanPassword strips whitespace from app passwords. Google displays
// them in groups of four separated by spaces.
func (c *Credentials) CleanPassword() string {
	return strings.TrimSpace(strings.ReplaceAll(c.Password, " ", ""))
}

// SASLClient returns the SASL mechanism matching the credentials kind:
// PLAIN for app passwords, OAUTHBEARER for token credentials. Token
// credentials are refreshed first when expired.
func (c *Credentials) SASLClient(ctx context.Context) (sasl.Client, error) {
	switch c.Kind {
	case KindPassword:
		return sasl.NewPlainClient("", c.Username, c.CleanPassword()), nil
	case KindOAuth2:
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: c.Username,
			Token:    c.AccessToken,
		}), nil
	default:
		return nil, fmt.Errorf("unknown credentials kind %q", c.Kind)
	}
}

// Refresh renews the access token through the issuing endpoint when it
// is missing or expired. Password credentials are a no-op.
func (c *Credentials) Refresh(ctx context.Context) error {
	if c.Kind != KindOAuth2 {
		return nil
	}
	if c.AccessToken != "" && (c.Expiry.IsZero() || time.Now().Before(c.Expiry)) {
		return nil
	}
	if c.RefreshToken == "" || c.TokenURL == "" {
		return fmt.Errorf("access token expired and no refresh token or token URL available")
	}

	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{TokenURL: c.TokenURL},
		Scopes:   c.Scopes,
	}
	token, err := cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}).Token()
	if err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}

	c.AccessToken = token.AccessToken
	c.Expiry = token.Expiry
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	return nil
}
