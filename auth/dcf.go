package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

// dcf is a token source that uses the device code flow for initial tokens.
type dcf struct {
	mu sync.Mutex

	cfg    oauth2.Config
	st     Storage
	client *http.Client
	prompt DeviceCodePrompt
}

// DeviceCodePrompt tells the user to visit verURI and enter userCode.
// verURIComplete may be empty.
type DeviceCodePrompt func(userCode, verURI, verURIComplete string)

// DeviceCodeFlow creates a TokenSource which retrieves tokens through the
// device code flow. If client is nil, [http.DefaultClient] is used instead.
// prompt must be a function which prompts to navigate to the verification URI
// and enter the user code. It may be called concurrently at any time when a
// new refresh token is required.
func DeviceCodeFlow(cfg oauth2.Config, st Storage, client *http.Client, prompt DeviceCodePrompt) TokenSource {
	if cfg.Endpoint.DeviceAuthURL == "" {
		panic("auth: device code flow without device auth url")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &dcf{
		cfg:    cfg,
		st:     st,
		client: client,
		prompt: prompt,
	}
}

func (s *dcf) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't retrieve current token: %w", err)
	}
	if tok == nil {
		return s.flowLocked(ctx)
	}
	if !tok.Valid() {
		if tok.RefreshToken == "" {
			return s.flowLocked(ctx)
		}
		tok, err := s.refreshLocked(ctx, tok.RefreshToken)
		if errors.Is(err, errInvalidRefresh) {
			return s.flowLocked(ctx)
		}
		return tok, err
	}
	return tok, nil
}

func (s *dcf) Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't retrieve current token for refresh: %w", err)
	}
	if tok != nil {
		if !Equal(tok, old) {
			slog.InfoContext(ctx, "token not current, won't refresh")
			return tok, nil
		}
		tok, err := s.refreshLocked(ctx, tok.RefreshToken)
		switch {
		case err == nil:
			return tok, nil
		case errors.Is(err, errInvalidRefresh):
			return s.flowLocked(ctx)
		default:
			return nil, err
		}
	}
	return s.flowLocked(ctx)
}

// tokenResponse is the body of a token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`

	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (s *dcf) refreshLocked(ctx context.Context, rt string) (*oauth2.Token, error) {
	if rt == "" {
		return nil, errInvalidRefresh
	}
	// x/oauth2 doesn't expose anything to do token refresh, so we implement
	// that manually here.
	v := url.Values{
		"client_id":     {s.cfg.ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {rt},
	}
	if s.cfg.ClientSecret != "" {
		v.Set("client_secret", s.cfg.ClientSecret)
	}
	if len(s.cfg.Scopes) != 0 {
		v.Set("scope", strings.Join(s.cfg.Scopes, " "))
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Endpoint.TokenURL, strings.NewReader(v.Encode()))
	if err != nil {
		return nil, fmt.Errorf("couldn't create token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("couldn't read refresh response body: %w", err)
	}
	var d tokenResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("couldn't decode token refresh response: %w", err)
	}
	slog.InfoContext(ctx, "refresh response", slog.Int("status", resp.StatusCode), slog.String("error", d.Error))
	if resp.StatusCode == http.StatusBadRequest && d.Error == "invalid_grant" {
		return nil, fmt.Errorf("refresh failed: %s (%w)", d.Description, errInvalidRefresh)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh failed: %s %s (%s)", d.Error, d.Description, resp.Status)
	}
	tok := &oauth2.Token{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		TokenType:    d.TokenType,
	}
	if tok.RefreshToken == "" {
		// Servers may decline to rotate the refresh token.
		tok.RefreshToken = rt
	}
	if d.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(d.ExpiresIn) * time.Second)
	}
	if err := s.st.Store(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to store new token: %w", err)
	}
	return tok, nil
}

func (s *dcf) flowLocked(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	resp, err := s.cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, err
	}
	s.prompt(resp.UserCode, resp.VerificationURI, resp.VerificationURIComplete)
	var tok *oauth2.Token
	for {
		tok, err = s.cfg.DeviceAccessToken(ctx, resp)
		if err == nil {
			break
		}
		if isPending(err) {
			continue
		}
		return nil, fmt.Errorf("failed to get token from device code flow: %w", err)
	}
	if err := s.st.Store(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to store first token: %w", err)
	}
	return tok, nil
}

// isPending returns whether the error indicates that device code authorization
// is pending the user's input.
func isPending(err error) bool {
	r := new(oauth2.RetrieveError)
	if !errors.As(err, &r) {
		return false
	}
	return r.ErrorCode == "authorization_pending" || r.ErrorCode == "slow_down"
}

var errInvalidRefresh = errors.New("invalid refresh token")
