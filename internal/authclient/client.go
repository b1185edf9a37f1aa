// Package authclient talks to the external password identity provider over
// HTTP. The core only consumes sign-up, sign-in, sign-out and the current
// user profile; everything else about the provider is out of scope.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/footprint/internal/identity"
)

const defaultAuthTimeout = 15 * time.Second

var (
	errMissingAuthBaseURL = errors.New("authclient: base url is required")

	// ErrProviderRejected wraps a non-2xx provider response; the provider's
	// own message is surfaced verbatim to callers.
	ErrProviderRejected = errors.New("authclient: provider rejected request")
)

// Config bundles configuration for the provider client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements identity.Provider against a GoTrue-style REST surface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a provider client with validated configuration.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingAuthBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultAuthTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionPayload struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// SignUp registers a new account and returns the issued session.
func (c *Client) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	return c.exchange(ctx, c.baseURL+"/signup", email, password)
}

// SignIn authenticates with the password grant and returns the issued session.
func (c *Client) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	return c.exchange(ctx, c.baseURL+"/token?grant_type=password", email, password)
}

// SignOut revokes the provider session for the given access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("authclient: build request: %w", err)
	}
	c.decorate(request)
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("authclient: logout: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeProviderError(response)
	}
	return nil
}

// User fetches the profile bound to the given access token.
func (c *Client) User(ctx context.Context, accessToken string) (identity.User, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return identity.User{}, fmt.Errorf("authclient: build request: %w", err)
	}
	c.decorate(request)
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return identity.User{}, fmt.Errorf("authclient: fetch user: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return identity.User{}, decodeProviderError(response)
	}

	var payload userPayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return identity.User{}, fmt.Errorf("authclient: decode user: %w", err)
	}
	return identity.User{ID: payload.ID, Email: payload.Email, CreatedAt: payload.CreatedAt}, nil
}

func (c *Client) exchange(ctx context.Context, endpoint, email, password string) (identity.Session, error) {
	body, err := json.Marshal(credentialsPayload{Email: email, Password: password})
	if err != nil {
		return identity.Session{}, fmt.Errorf("authclient: encode credentials: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return identity.Session{}, fmt.Errorf("authclient: build request: %w", err)
	}
	c.decorate(request)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return identity.Session{}, fmt.Errorf("authclient: exchange: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return identity.Session{}, decodeProviderError(response)
	}

	var payload sessionPayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return identity.Session{}, fmt.Errorf("authclient: decode session: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return identity.Session{}, fmt.Errorf("%w: no access token issued", ErrProviderRejected)
	}

	session := identity.Session{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		User: identity.User{
			ID:        payload.User.ID,
			Email:     payload.User.Email,
			CreatedAt: payload.User.CreatedAt,
		},
	}
	if payload.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second).UTC()
	}
	return session, nil
}

func (c *Client) decorate(request *http.Request) {
	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set("apikey", c.apiKey)
	}
}

func decodeProviderError(response *http.Response) error {
	var payload struct {
		ErrorDescription string `json:"error_description"`
		Message          string `json:"msg"`
		Detail           string `json:"detail"`
	}
	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<16))
	if err == nil {
		_ = json.Unmarshal(raw, &payload)
	}

	message := payload.ErrorDescription
	if message == "" {
		message = payload.Message
	}
	if message == "" {
		message = payload.Detail
	}
	if message == "" {
		return fmt.Errorf("%w: status %d", ErrProviderRejected, response.StatusCode)
	}
	return fmt.Errorf("%w: %s", ErrProviderRejected, message)
}
