package linking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emberfield/hearth-bridge/internal/infrastructure/config"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
)

// providerTimeout bounds each identity-provider call.
const providerTimeout = 10 * time.Second

// Grant is the token material returned by a code exchange.
type Grant struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Profile is the external identity fetched with an access token.
type Profile struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	PostalCode string `json:"postal_code"`
}

// providerError is the machine-readable error body of a failed exchange.
type providerError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ProviderClient talks to the external identity provider: authorization
// code exchange and profile fetch.
//
// Failures are typed. A transport fault is ErrProviderUnreachable; a
// provider-level rejection carries the provider's own detail and is
// ErrInvalidCode or ErrProvider for the token endpoint, ErrProfileFetch
// for the profile endpoint.
type ProviderClient struct {
	cfg    config.OAuthConfig
	client *http.Client
	logger *logging.Logger
}

// NewProviderClient creates a provider client from OAuth configuration.
func NewProviderClient(cfg config.OAuthConfig, logger *logging.Logger) *ProviderClient {
	return &ProviderClient{
		cfg:    cfg,
		client: &http.Client{Timeout: providerTimeout},
		logger: logger,
	}
}

// ExchangeCode trades an authorization code for a token grant.
func (c *ProviderClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*Grant, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, ErrMisconfigured
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var detail providerError
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		c.logger.Warn("token exchange rejected",
			"status", resp.StatusCode,
			"provider_error", detail.Error,
		)
		if detail.Error == "invalid_grant" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCode, detail.Description)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, detail.Error)
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("%w: decoding grant: %w", ErrProvider, err)
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("%w: grant carries no access token", ErrProvider)
	}
	return &grant, nil
}

// FetchProfile retrieves the external profile for an access token.
func (c *ProviderClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("x-amz-access-token", accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProfileFetch, resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: decoding profile: %w", ErrProfileFetch, err)
	}
	if profile.UserID == "" {
		return nil, fmt.Errorf("%w: profile carries no user id", ErrProfileFetch)
	}
	return &profile, nil
}
