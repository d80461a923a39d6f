package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"
)

// Profile is a Minecraft identity with the access token used to join servers.
type Profile struct {
	// ID is the player UUID without hyphens.
	ID string `json:"id"`
	// Name is the player name.
	Name string `json:"name"`
	// AccessToken is the Minecraft access token. It is not the Microsoft
	// access token used to obtain it.
	AccessToken string `json:"-"`
}

// Endpoints locates the services in the Xbox Live login chain.
type Endpoints struct {
	XBL     string
	XSTS    string
	Login   string
	Profile string
}

// Live are the production endpoints.
var Live = Endpoints{
	XBL:     "https://user.auth.xboxlive.com/user/authenticate",
	XSTS:    "https://xsts.auth.xboxlive.com/xsts/authorize",
	Login:   "https://api.minecraftservices.com/authentication/login_with_xbox",
	Profile: "https://api.minecraftservices.com/minecraft/profile",
}

// ErrNoProfile is returned when the account does not own the game.
var ErrNoProfile = errors.New("account has no Minecraft profile")

// ErrRejected is returned when Xbox Live refuses the Microsoft access token.
// Refreshing the token may resolve it.
var ErrRejected = errors.New("microsoft token rejected")

// Minecraft exchanges a Microsoft access token for a Minecraft profile.
// If client is nil, [http.DefaultClient] is used instead.
func (ep Endpoints) Minecraft(ctx context.Context, client *http.Client, msAccess string) (*Profile, error) {
	if client == nil {
		client = http.DefaultClient
	}
	xbl, uhs, err := ep.xbl(ctx, client, msAccess)
	if err != nil {
		return nil, err
	}
	xsts, err := ep.xsts(ctx, client, xbl)
	if err != nil {
		return nil, err
	}
	access, err := ep.login(ctx, client, uhs, xsts)
	if err != nil {
		return nil, err
	}
	p, err := ep.profile(ctx, client, access)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "minecraft login", slog.String("name", p.Name), slog.String("id", p.ID))
	return p, nil
}

type xboxResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
		} `json:"xui"`
	} `json:"DisplayClaims"`

	XErr     int64  `json:"XErr"`
	Message  string `json:"Message"`
	Redirect string `json:"Redirect"`
}

func (ep Endpoints) xbl(ctx context.Context, client *http.Client, msAccess string) (token, uhs string, err error) {
	body := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + msAccess,
		},
		"RelyingParty": "http://auth.xboxlive.com",
		"TokenType":    "JWT",
	}
	var r xboxResponse
	status, err := post(ctx, client, ep.XBL, body, &r)
	if err != nil {
		return "", "", fmt.Errorf("xbox live authentication failed: %w", err)
	}
	if status == http.StatusUnauthorized {
		return "", "", fmt.Errorf("xbox live authentication failed: %w", ErrRejected)
	}
	if status != http.StatusOK {
		return "", "", fmt.Errorf("xbox live authentication failed: %s", xerr(status, r))
	}
	if len(r.DisplayClaims.XUI) == 0 {
		return "", "", errors.New("xbox live authentication returned no user hash")
	}
	return r.Token, r.DisplayClaims.XUI[0].UHS, nil
}

func (ep Endpoints) xsts(ctx context.Context, client *http.Client, xbl string) (string, error) {
	body := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xbl},
		},
		"RelyingParty": "rp://api.minecraftservices.com/",
		"TokenType":    "JWT",
	}
	var r xboxResponse
	status, err := post(ctx, client, ep.XSTS, body, &r)
	if err != nil {
		return "", fmt.Errorf("xsts authorization failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("xsts authorization failed: %s", xerr(status, r))
	}
	return r.Token, nil
}

// xerr describes an Xbox error response.
func xerr(status int, r xboxResponse) string {
	switch r.XErr {
	case 0:
		return fmt.Sprintf("status %d", status)
	case 2148916233:
		return "the account has no Xbox profile"
	case 2148916235:
		return "Xbox Live is unavailable in the account's country"
	case 2148916236, 2148916237:
		return "the account needs adult verification"
	case 2148916238:
		return "the account belongs to a child and must be added to a family"
	default:
		return fmt.Sprintf("status %d, XErr %d %s", status, r.XErr, r.Message)
	}
}

func (ep Endpoints) login(ctx context.Context, client *http.Client, uhs, xsts string) (string, error) {
	body := map[string]any{
		"identityToken": "XBL3.0 x=" + uhs + ";" + xsts,
	}
	var r struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Error        string `json:"error"`
		ErrorMessage string `json:"errorMessage"`
	}
	status, err := post(ctx, client, ep.Login, body, &r)
	if err != nil {
		return "", fmt.Errorf("minecraft login failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("minecraft login failed: %s %s (status %d)", r.Error, r.ErrorMessage, status)
	}
	return r.AccessToken, nil
}

func (ep Endpoints) profile(ctx context.Context, client *http.Client, access string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ep.Profile, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't make profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Accept", "application/json")
	var p Profile
	status, err := do(client, req, &p)
	if err != nil {
		return nil, fmt.Errorf("couldn't get minecraft profile: %w", err)
	}
	switch status {
	case http.StatusOK: // do nothing
	case http.StatusNotFound:
		return nil, ErrNoProfile
	default:
		return nil, fmt.Errorf("couldn't get minecraft profile: status %d", status)
	}
	if p.ID == "" || p.Name == "" {
		return nil, ErrNoProfile
	}
	p.AccessToken = access
	return &p, nil
}

// post sends a JSON request and decodes the response into out.
// Decoding is skipped for empty responses, which Xbox services send for some
// errors.
func post(ctx context.Context, client *http.Client, url string, in, out any) (int, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("couldn't encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("couldn't make request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) (int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("couldn't read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("couldn't decode response: %w", err)
	}
	return resp.StatusCode, nil
}
