// Package strava implements the OAuth2 session against the Strava API and
// the manual-activity upload. Tokens live in the KEY=value credential file;
// no expiry is tracked — validity is probed before every upload and a 401 is
// recovered by exactly one refresh.
package strava

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/agonajredini/Treadmill-to-Strava/pkg/envfile"
)

const (
	DefaultAPIBaseURL  = "https://www.strava.com/api/v3"
	DefaultAuthURL     = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL    = "https://www.strava.com/oauth/token"
	DefaultRedirectURI = "https://tekksparrow-programs.github.io/website/"

	// ScopeActivityWrite is the only scope the tool requests.
	ScopeActivityWrite = "activity:write"
)

// Credential file keys.
const (
	KeyClientID     = "STRAVA_CLIENT_ID"
	KeyClientSecret = "STRAVA_CLIENT_SECRET"
	KeyAccessToken  = "STRAVA_ACCESS_TOKEN"
	KeyRefreshToken = "STRAVA_REFRESH_TOKEN"
)

// ErrNoClientCredentials means the credential file lacks the client id or
// secret, without which neither authorization nor refresh can work.
var ErrNoClientCredentials = fmt.Errorf("missing %s or %s in credential file", KeyClientID, KeyClientSecret)

// CallbackFunc obtains the redirected callback URL after the user authorized
// the app in the browser. authURL is the authorization link shown or opened.
type CallbackFunc func(ctx context.Context, authURL string) (string, error)

// Session owns one access/refresh token pair and its persistence. It replaces
// the process-wide token globals the flow traditionally relies on: every call
// path receives the session explicitly.
type Session struct {
	// Endpoint overrides, settable for tests. Zero values mean the
	// production Strava endpoints.
	AuthURL     string
	TokenURL    string
	RedirectURI string

	// ObtainCallback supplies the redirected URL during Authorize. Defaults
	// to an interactive paste prompt on stdin.
	ObtainCallback CallbackFunc
	// OpenBrowser opens the authorization link. Defaults to the system
	// browser; failures are logged, not fatal, since the link is printed.
	OpenBrowser func(url string) error

	clientID     string
	clientSecret string
	accessToken  string
	refreshToken string

	store *envfile.Store
	http  *http.Client
	log   zerolog.Logger
}

// NewSession loads credentials from store. A missing client id/secret is an
// error; missing tokens are not — they are obtained on first Authorize.
func NewSession(store *envfile.Store, logger zerolog.Logger) (*Session, error) {
	vals, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if vals[KeyClientID] == "" || vals[KeyClientSecret] == "" {
		return nil, ErrNoClientCredentials
	}
	return &Session{
		AuthURL:      DefaultAuthURL,
		TokenURL:     DefaultTokenURL,
		RedirectURI:  DefaultRedirectURI,
		OpenBrowser:  browser.OpenURL,
		clientID:     vals[KeyClientID],
		clientSecret: vals[KeyClientSecret],
		accessToken:  vals[KeyAccessToken],
		refreshToken: vals[KeyRefreshToken],
		store:        store,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          logger,
	}, nil
}

// AccessToken returns the in-memory access token, possibly empty.
func (s *Session) AccessToken() string { return s.accessToken }

// Token returns the cached access token, running the interactive
// authorization flow when none is stored yet.
func (s *Session) Token(ctx context.Context) (string, error) {
	if s.accessToken != "" {
		return s.accessToken, nil
	}
	return s.Authorize(ctx)
}

// AuthorizationURL builds the browser link for the authorization-code flow.
func (s *Session) AuthorizationURL() string {
	q := url.Values{}
	q.Set("client_id", s.clientID)
	q.Set("redirect_uri", s.RedirectURI)
	q.Set("response_type", "code")
	q.Set("approval_prompt", "auto")
	q.Set("scope", ScopeActivityWrite)
	return s.AuthURL + "?" + q.Encode()
}

// Authorize runs the interactive authorization-code flow: open the browser,
// collect the redirected callback URL, exchange the code and persist both
// tokens. Returns the new access token.
func (s *Session) Authorize(ctx context.Context) (string, error) {
	authURL := s.AuthorizationURL()
	if s.OpenBrowser != nil {
		if err := s.OpenBrowser(authURL); err != nil {
			s.log.Warn().Err(err).Msg("could not open browser, use the printed link")
		}
	}
	obtain := s.ObtainCallback
	if obtain == nil {
		obtain = PasteCallback(nil, nil)
	}
	callbackURL, err := obtain(ctx, authURL)
	if err != nil {
		return "", fmt.Errorf("obtain callback URL: %w", err)
	}
	if strings.TrimSpace(callbackURL) == "" {
		return "", fmt.Errorf("authorization failed: no callback URL was provided")
	}
	code, err := extractCode(callbackURL)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	tok, err := s.postTokenForm(ctx, form)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}

	if err := s.storeTokens(tok); err != nil {
		return "", err
	}
	s.log.Info().Msg("authorization complete, tokens stored")
	return s.accessToken, nil
}

// Refresh exchanges the stored refresh token for a fresh pair and replaces
// both tokens in memory and in the credential file. Never retried: a failed
// refresh is fatal for the current upload.
func (s *Session) Refresh(ctx context.Context) error {
	if s.refreshToken == "" {
		return fmt.Errorf("no refresh token stored, re-authorization required")
	}
	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("refresh_token", s.refreshToken)
	form.Set("grant_type", "refresh_token")
	tok, err := s.postTokenForm(ctx, form)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if err := s.storeTokens(tok); err != nil {
		return err
	}
	s.log.Info().Msg("access token refreshed")
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Session) postTokenForm(ctx context.Context, form url.Values) (tokenResponse, error) {
	var tok tokenResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tok, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.http.Do(req)
	if err != nil {
		return tok, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tok, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tok, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return tok, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return tok, fmt.Errorf("token endpoint returned no access_token: %s", body)
	}
	return tok, nil
}

// storeTokens replaces both tokens in memory and persists them in one
// atomic credential-file rewrite.
func (s *Session) storeTokens(tok tokenResponse) error {
	pairs := map[string]string{KeyAccessToken: tok.AccessToken}
	if tok.RefreshToken != "" {
		pairs[KeyRefreshToken] = tok.RefreshToken
	}
	if err := s.store.Set(pairs); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	return nil
}

func extractCode(callbackURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(callbackURL))
	if err != nil {
		return "", fmt.Errorf("parse callback URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("callback URL carries no code parameter")
	}
	return code, nil
}
