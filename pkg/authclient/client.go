package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobhunt/pkg/domain"
)

// Client calls the hosted auth service (GoTrue API) over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// APIError represents an auth service error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrNoSession is returned by SignUp when the account was created but must
// be confirmed by email before a session is issued.
var ErrNoSession = errors.New("confirmation required before sign in")

// NewClient constructs an auth service client for baseURL/auth/v1.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

// SignUp registers an account. redirectTo is where the confirmation email
// link lands. When confirmation is pending the returned session carries only
// the user, together with ErrNoSession.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (domain.Session, error) {
	path := "/auth/v1/signup"
	if strings.TrimSpace(redirectTo) != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	payload := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, path, "", payload, &resp); err != nil {
		return domain.Session{}, err
	}
	sess := resp.session(c.now())
	if sess.AccessToken == "" {
		return sess, ErrNoSession
	}
	return sess, nil
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", payload, &resp); err != nil {
		return domain.Session{}, err
	}
	return resp.session(c.now()), nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", payload, &resp); err != nil {
		return domain.Session{}, err
	}
	return resp.session(c.now()), nil
}

// SignOut revokes the session behind token.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
}

// User returns the identity behind an access token.
func (c *Client) User(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", token, nil, &user); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, fmt.Errorf("auth: user response missing id")
	}
	return user, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeAPIError accepts the error shapes the auth service has used across
// versions: {msg, error_code}, {error, error_description} and {message}.
func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
	msg := firstNonEmpty(errResp.Msg, errResp.ErrorDescription, errResp.Message, errResp.Error, resp.Status)
	code := firstNonEmpty(errResp.ErrorCode, errResp.Error)
	return &APIError{Status: resp.StatusCode, Message: msg, Code: code}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *domain.User `json:"user"`

	// Set when sign up returns a bare user pending confirmation.
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (r sessionResponse) session(now time.Time) domain.Session {
	sess := domain.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(r.ExpiresAt, 0).UTC()
	case r.ExpiresIn > 0:
		sess.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second).UTC()
	}
	if r.User != nil {
		sess.User = *r.User
	} else {
		sess.User = domain.User{ID: r.ID, Email: r.Email}
	}
	return sess
}
