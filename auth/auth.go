// Package auth obtains the credentials needed to join online-mode servers.
//
// Microsoft account tokens come from the OAuth2 device code flow and are kept
// in encrypted storage. They are exchanged in turn for Xbox Live, XSTS, and
// finally Minecraft tokens.
package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource is a source of OAuth2 access tokens. Its methods are safe to
// call concurrently.
type TokenSource interface {
	// Token retrieves a token value. This may trigger OAuth2 flows including
	// token refresh or the device code flow.
	// The result is always non-nil if the error is nil.
	Token(ctx context.Context) (*oauth2.Token, error)
	// Refresh forces a refresh of the token if its current value is identical
	// to old in the sense of [Equal]. This may trigger OAuth2 flows.
	// The result is the refreshed token.
	// The requirement to provide the old token allows Refresh to be called
	// concurrently without flooding refresh requests.
	Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error)
}

// Equal compares two OAuth2 tokens by access token, refresh token, token type,
// and expiry.
func Equal(a, b *oauth2.Token) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.AccessToken == b.AccessToken &&
		a.TokenType == b.TokenType &&
		a.RefreshToken == b.RefreshToken &&
		a.Expiry.Equal(b.Expiry)
}

// Microsoft is the endpoint for personal Microsoft accounts.
var Microsoft = oauth2.Endpoint{
	DeviceAuthURL: "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode",
	TokenURL:      "https://login.microsoftonline.com/consumers/oauth2/v2.0/token",
	AuthStyle:     oauth2.AuthStyleInParams,
}

// Scopes are the OAuth2 scopes needed to reach Xbox Live.
var Scopes = []string{"XboxLive.signin", "offline_access"}
