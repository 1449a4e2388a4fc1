package linking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emberfield/hearth-bridge/internal/infrastructure/config"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
)

func providerConfig(tokenURL, profileURL string) config.OAuthConfig {
	return config.OAuthConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		TokenURL:     tokenURL,
		ProfileURL:   profileURL,
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		for key, want := range map[string]string{
			"grant_type":    "authorization_code",
			"code":          "code-1",
			"redirect_uri":  "https://bridge.example/link/callback",
			"client_id":     "client-1",
			"client_secret": "secret-1",
		} {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("form %s = %q, want %q", key, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"bearer","expires_in":3600,"refresh_token":"rt-1"}`))
	}))
	defer srv.Close()

	c := NewProviderClient(providerConfig(srv.URL, ""), logging.Default())

	grant, err := c.ExchangeCode(context.Background(), "code-1", "https://bridge.example/link/callback")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if grant.AccessToken != "at-1" || grant.RefreshToken != "rt-1" {
		t.Errorf("grant = %+v, want tokens at-1/rt-1", grant)
	}
}

func TestExchangeCode_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	c := NewProviderClient(providerConfig(srv.URL, ""), logging.Default())

	_, err := c.ExchangeCode(context.Background(), "stale", "https://bridge.example/cb")
	if !errors.Is(err, ErrInvalidCode) {
		t.Errorf("error = %v, want ErrInvalidCode", err)
	}
}

func TestExchangeCode_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"server_error"}`))
	}))
	defer srv.Close()

	c := NewProviderClient(providerConfig(srv.URL, ""), logging.Default())

	_, err := c.ExchangeCode(context.Background(), "code-1", "https://bridge.example/cb")
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestExchangeCode_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	u := srv.URL
	srv.Close()

	c := NewProviderClient(providerConfig(u, ""), logging.Default())

	_, err := c.ExchangeCode(context.Background(), "code-1", "https://bridge.example/cb")
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Errorf("error = %v, want ErrProviderUnreachable", err)
	}
}

func TestExchangeCode_Misconfigured(t *testing.T) {
	c := NewProviderClient(config.OAuthConfig{}, logging.Default())

	_, err := c.ExchangeCode(context.Background(), "code-1", "https://bridge.example/cb")
	if !errors.Is(err, ErrMisconfigured) {
		t.Errorf("error = %v, want ErrMisconfigured", err)
	}
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-amz-access-token"); got != "at-1" {
			t.Errorf("access token header = %q, want at-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"ext-1","email":"ada@example.com","name":"Ada","postal_code":"EC1"}`))
	}))
	defer srv.Close()

	c := NewProviderClient(providerConfig("", srv.URL), logging.Default())

	profile, err := c.FetchProfile(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.UserID != "ext-1" || profile.Name != "Ada" {
		t.Errorf("profile = %+v, want ext-1/Ada", profile)
	}
}

func TestFetchProfile_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewProviderClient(providerConfig("", srv.URL), logging.Default())

	_, err := c.FetchProfile(context.Background(), "bogus")
	if !errors.Is(err, ErrProfileFetch) {
		t.Errorf("error = %v, want ErrProfileFetch", err)
	}
}
