package provider

import (
	"os"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes required for delegated calendar access. Fixed and global per
// tenant; there is no per-request scope negotiation.
var Scopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// GetOAuthConfig returns the OAuth2 config for the calendar provider.
// Client credentials come from the application config but may be overridden
// via environment variables.
func GetOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if env := os.Getenv("GOOGLE_CLIENT_ID"); env != "" {
		clientID = env
	}
	if env := os.Getenv("GOOGLE_CLIENT_SECRET"); env != "" {
		clientSecret = env
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}
