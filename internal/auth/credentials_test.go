package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{
			name:  "valid password",
			creds: Credentials{Kind: KindPassword, Username: "a@x.com", Password: "secret"},
		},
		{
			name:  "valid oauth2",
			creds: Credentials{Kind: KindOAuth2, Username: "a@x.com", AccessToken: "tok"},
		},
		{
			name:    "missing username",
			creds:   Credentials{Kind: KindPassword, Password: "secret"},
			wantErr: true,
		},
		{
			name:    "password kind without password",
			creds:   Credentials{Kind: KindPassword, Username: "a@x.com"},
			wantErr: true,
		},
		{
			name:    "oauth2 without tokens",
			creds:   Credentials{Kind: KindOAuth2, Username: "a@x.com"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			creds:   Credentials{Kind: "magic", Username: "a@x.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentials_CleanPassword(t *testing.T) {
	c := Credentials{Password: " abcd efgh ijkl mnop "}
	if got := c.CleanPassword(); got != "abcdefghijklmnop" {
		t.Errorf("CleanPassword() = %q", got)
	}
}

func TestCredentials_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	orig := &Credentials{
		Kind:     KindPassword,
		Username: "a@x.com",
		Password: "secret",
	}
	if err := orig.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Username != orig.Username || loaded.Password != orig.Password {
		t.Errorf("LoadFile() = %+v, want %+v", loaded, orig)
	}
}

func TestCredentials_SASLClientPassword(t *testing.T) {
	c := Credentials{Kind: KindPassword, Username: "a@x.com", Password: "pw"}
	client, err := c.SASLClient(context.Background())
	if err != nil {
		t.Fatalf("SASLClient() error = %v", err)
	}
	mech, _, err := client.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if mech != "PLAIN" {
		t.Errorf("mechanism = %q, want PLAIN", mech)
	}
}

func TestCredentials_SASLClientOAuth(t *testing.T) {
	c := Credentials{
		Kind:        KindOAuth2,
		Username:    "a@x.com",
		AccessToken: "tok",
		Expiry:      time.Now().Add(time.Hour),
	}
	client, err := c.SASLClient(context.Background())
	if err != nil {
		t.Fatalf("SASLClient() error = %v", err)
	}
	mech, _, err := client.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if mech != "OAUTHBEARER" {
		t.Errorf("mechanism = %q, want OAUTHBEARER", mech)
	}
}

func TestCredentials_RefreshWithoutRefreshToken(t *testing.T) {
	c := Credentials{
		Kind:        KindOAuth2,
		Username:    "a@x.com",
		AccessToken: "tok",
		Expiry:      time.Now().Add(-time.Hour),
	}
	if err := c.Refresh(context.Background()); err == nil {
		t.Error("Refresh() expected error for expired token without refresh token")
	}
}
