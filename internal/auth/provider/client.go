package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the credential triple returned by the provider. RefreshToken
// is empty when the provider withheld it (e.g. repeat consent without
// prompt=consent).
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Identity is the remote account attached to a token set.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}

// Client performs the remote OAuth calls the system needs. Implementations
// must propagate ctx to the underlying network calls.
type Client interface {
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
	Revoke(ctx context.Context, accessToken string) error
}

const (
	userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	revokeURL   = "https://oauth2.googleapis.com/revoke"
)

// googleClient implements Client on top of golang.org/x/oauth2.
type googleClient struct {
	config *oauth2.Config
}

// NewClient returns a Client backed by the given OAuth2 config.
func NewClient(config *oauth2.Config) Client {
	return &googleClient{config: config}
}

func (c *googleClient) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return fromOAuth2Token(token), nil
}

func (c *googleClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	// TokenSource performs the refresh grant on first Token() call.
	src := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, err
	}
	return fromOAuth2Token(token), nil
}

func (c *googleClient) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var userInfo struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &Identity{
		ID:          userInfo.ID,
		Email:       userInfo.Email,
		DisplayName: userInfo.Name,
	}, nil
}

func (c *googleClient) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func fromOAuth2Token(token *oauth2.Token) *TokenSet {
	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}
