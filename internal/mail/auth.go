package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
)

var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.modify",
}

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Authenticate loads the OAuth client credentials and a previously
// granted token (obtained out-of-band, the device has no browser) and
// returns an auto-refreshing http client. Refreshed tokens are written
// back so the grant survives restarts.
func Authenticate(ctx context.Context, credentialsPath, tokenPath string) (*http.Client, error) {
	conf, err := loadCredentials(credentialsPath)
	if err != nil {
		return nil, err
	}

	tok, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		path: tokenPath,
		src:  conf.TokenSource(ctx, tok),
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}

func loadCredentials(path string) (*oauth2.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds struct {
		Installed struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
		} `json:"installed"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Installed.ClientID == "" {
		return nil, fmt.Errorf("credentials file %s has no installed client", path)
	}
	return &oauth2.Config{
		ClientID:     creds.Installed.ClientID,
		ClientSecret: creds.Installed.ClientSecret,
		Endpoint:     googleEndpoint,
		Scopes:       gmailScopes,
	}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &tok, nil
}

// persistingSource writes the token file whenever a refresh produced a
// new access token.
type persistingSource struct {
	path string
	src  oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if raw, err := json.Marshal(tok); err == nil {
			_ = os.WriteFile(p.path, raw, 0o600)
		}
	}
	return tok, nil
}
