package api

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

	"go.uber.org/zap"
)

const (
	headerSessionID   = "X-Session-ID"
	headerAuthorize   = "Authorization"
	contentTypeJSON   = "application/json"
	defaultAPITimeout = 15 * time.Second
)

var (
	// ErrNoAttribution indicates that neither a bearer token nor a session id
	// was available to attribute the request.
	ErrNoAttribution = errors.New("api: no attribution key available")

	errMissingBaseURL = errors.New("api: base url is required")
	errMissingCreds   = errors.New("api: credential source is required")
)

// APIError carries a non-2xx response decoded from the server's {detail} body.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("api: request failed with status %d", e.Status)
	}
	return e.Detail
}

// CredentialSource supplies the attribution key for outbound requests. The
// bearer token takes precedence when present; otherwise the session id
// identifies the guest.
type CredentialSource interface {
	Credentials() (token string, sessionID string)
}

// ClientConfig bundles dependencies for the API client.
type ClientConfig struct {
	BaseURL     string
	Credentials CredentialSource
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client is a typed JSON client for the footprint API.
type Client struct {
	baseURL    string
	creds      CredentialSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs an API client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Credentials == nil {
		return nil, errMissingCreds
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultAPITimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		creds:      cfg.Credentials,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ListActivities returns the caller's activities, most recent first.
func (c *Client) ListActivities(ctx context.Context, limit int) ([]Activity, error) {
	path := fmt.Sprintf("/api/v1/activities?limit=%d", limit)
	var activities []Activity
	if err := c.do(ctx, http.MethodGet, path, nil, &activities, true); err != nil {
		return nil, err
	}
	return activities, nil
}

// CreateActivity logs a new activity and returns the authoritative record.
func (c *Client) CreateActivity(ctx context.Context, input ActivityInput) (Activity, error) {
	var activity Activity
	if err := c.do(ctx, http.MethodPost, "/api/v1/activities", input, &activity, true); err != nil {
		return Activity{}, err
	}
	return activity, nil
}

// UpdateActivity replaces the mutable fields of an activity and returns the
// server echo with recalculated emissions.
func (c *Client) UpdateActivity(ctx context.Context, id string, patch ActivityUpdate) (Activity, error) {
	var activity Activity
	path := "/api/v1/activities/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, path, patch, &activity, true); err != nil {
		return Activity{}, err
	}
	return activity, nil
}

// DeleteActivity removes an activity.
func (c *Client) DeleteActivity(ctx context.Context, id string) error {
	path := "/api/v1/activities/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}

// MigrateSession re-attributes the given guest session's activities to the
// authenticated account. Requires a bearer token.
func (c *Client) MigrateSession(ctx context.Context, sessionID string) (MigrationResult, error) {
	body := map[string]string{"session_id": sessionID}
	var result MigrationResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/me/migrate-activities", body, &result, true); err != nil {
		return MigrationResult{}, err
	}
	return result, nil
}

// CurrentUser returns the authenticated account profile.
func (c *Client) CurrentUser(ctx context.Context) (UserProfile, error) {
	var profile UserProfile
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &profile, true); err != nil {
		return UserProfile{}, err
	}
	return profile, nil
}

// EmissionFactors returns the factor catalog, optionally filtered by category.
func (c *Client) EmissionFactors(ctx context.Context, category string) ([]EmissionFactor, error) {
	path := "/api/v1/emission-factors"
	if strings.TrimSpace(category) != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var factors []EmissionFactor
	if err := c.do(ctx, http.MethodGet, path, nil, &factors, false); err != nil {
		return nil, err
	}
	return factors, nil
}

// FootprintSummary returns period totals and comparison with the prior period.
func (c *Client) FootprintSummary(ctx context.Context, period string) (FootprintSummary, error) {
	var summary FootprintSummary
	path := "/api/v1/footprint/summary?period=" + url.QueryEscape(period)
	if err := c.do(ctx, http.MethodGet, path, nil, &summary, true); err != nil {
		return FootprintSummary{}, err
	}
	return summary, nil
}

// FootprintBreakdown returns per-category totals for the period.
func (c *Client) FootprintBreakdown(ctx context.Context, period string) (FootprintBreakdown, error) {
	var breakdown FootprintBreakdown
	path := "/api/v1/footprint/breakdown?period=" + url.QueryEscape(period)
	if err := c.do(ctx, http.MethodGet, path, nil, &breakdown, true); err != nil {
		return FootprintBreakdown{}, err
	}
	return breakdown, nil
}

// FootprintTrend returns the emissions series for the period.
func (c *Client) FootprintTrend(ctx context.Context, period string) (FootprintTrend, error) {
	var trend FootprintTrend
	path := "/api/v1/footprint/trend?period=" + url.QueryEscape(period)
	if err := c.do(ctx, http.MethodGet, path, nil, &trend, true); err != nil {
		return FootprintTrend{}, err
	}
	return trend, nil
}

// Regions returns the available comparison regions.
func (c *Client) Regions(ctx context.Context) ([]Region, error) {
	var payload struct {
		Regions []Region `json:"regions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/comparison/regions", nil, &payload, false); err != nil {
		return nil, err
	}
	return payload.Regions, nil
}

// CompareToRegion compares the caller's footprint against a regional average.
func (c *Client) CompareToRegion(ctx context.Context, regionCode, period string) (Comparison, error) {
	var comparison Comparison
	path := fmt.Sprintf("/api/v1/comparison/%s?period=%s", url.PathEscape(regionCode), url.QueryEscape(period))
	if err := c.do(ctx, http.MethodGet, path, nil, &comparison, true); err != nil {
		return Comparison{}, err
	}
	return comparison, nil
}

// Health probes the API health endpoint.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &health, false); err != nil {
		return Health{}, err
	}
	return health, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, attributed bool) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", contentTypeJSON)
	}
	request.Header.Set("Accept", contentTypeJSON)

	if attributed {
		if err := c.attribute(request); err != nil {
			return err
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(response)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// attribute sets exactly one attribution header: the bearer token when
// authenticated, the session id otherwise.
func (c *Client) attribute(request *http.Request) error {
	token, sessionID := c.creds.Credentials()
	switch {
	case strings.TrimSpace(token) != "":
		request.Header.Set(headerAuthorize, "Bearer "+token)
	case strings.TrimSpace(sessionID) != "":
		request.Header.Set(headerSessionID, sessionID)
	default:
		return ErrNoAttribution
	}
	return nil
}

func decodeAPIError(response *http.Response) error {
	apiErr := &APIError{Status: response.StatusCode}
	var payload struct {
		Detail string `json:"detail"`
	}
	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<16))
	if err == nil && json.Unmarshal(raw, &payload) == nil {
		apiErr.Detail = payload.Detail
	}
	return apiErr
}
