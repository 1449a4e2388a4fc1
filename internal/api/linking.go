package api

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/emberfield/hearth-bridge/internal/account"
	"github.com/emberfield/hearth-bridge/internal/linking"
)

// successPage confirms a completed linking run to the device owner.
var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.SiteName}} — Account Linked</title></head>
<body>
<h1>Account linked</h1>
<p>Welcome, {{.AccountName}}. Your account is now connected.</p>
<p>{{.DeviceCount}} fireplace(s) are ready for voice control.</p>
<p>You can close this window.</p>
</body>
</html>`))

// failurePage reports a linking failure with a retry link.
var failurePage = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.SiteName}} — Linking Failed</title></head>
<body>
<h1>Linking failed</h1>
<p>{{.Message}}</p>
<p><a href="/link/start">Try again</a></p>
</body>
</html>`))

// handleLinkStart begins the linking flow: it creates the session
// placeholder account and redirects the browser to the identity
// provider's consent page. The placeholder's link code travels through
// the provider round-trip as the OAuth state parameter.
func (s *Server) handleLinkStart(w http.ResponseWriter, r *http.Request) {
	placeholder := &account.Account{
		Name:     account.PlaceholderName,
		LinkCode: uuid.NewString(),
	}
	if err := s.accounts.Create(r.Context(), placeholder); err != nil {
		s.logger.Error("creating linking session failed", "error", err)
		s.renderLinkFailure(w, "We could not start the linking session. Please try again.")
		return
	}

	authorize, err := url.Parse(s.oauth.AuthorizeURL)
	if err != nil {
		s.logger.Error("authorize URL misconfigured", "error", err)
		s.renderLinkFailure(w, "The server is misconfigured. Please contact support.")
		return
	}

	q := authorize.Query()
	q.Set("client_id", s.oauth.ClientID)
	q.Set("scope", "profile profile:user_id")
	q.Set("response_type", "code")
	q.Set("redirect_uri", s.callbackURL())
	q.Set("state", placeholder.LinkCode)
	authorize.RawQuery = q.Encode()

	s.logger.Info("linking session started", "account_id", placeholder.ID)
	http.Redirect(w, r, authorize.String(), http.StatusFound)
}

// handleLinkCallback completes the linking flow when the provider
// redirects back with an authorization code.
func (s *Server) handleLinkCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		s.logger.Warn("provider declined linking", "reason", reason)
		s.renderLinkFailure(w, "The identity provider declined the request. Please try again.")
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		s.renderLinkFailure(w, "The callback is missing its authorization code.")
		return
	}

	summary, err := s.linker.Link(r.Context(), code, state)
	if err != nil {
		s.renderLinkFailure(w, linkFailureMessage(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderErr := successPage.Execute(w, map[string]any{
		"SiteName":    s.site.Name,
		"AccountName": summary.Account.Name,
		"DeviceCount": summary.DevicesLinked,
	})
	if renderErr != nil {
		s.logger.Error("rendering success page failed", "error", renderErr)
	}
}

// renderLinkFailure renders the human-facing failure page.
func (s *Server) renderLinkFailure(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := failurePage.Execute(w, map[string]any{
		"SiteName": s.site.Name,
		"Message":  message,
	}); err != nil {
		s.logger.Error("rendering failure page failed", "error", err)
	}
}

// linkFailureMessage maps a linking error to a human-readable message.
func linkFailureMessage(err error) string {
	switch {
	case errors.Is(err, linking.ErrInvalidCode):
		return "The sign-in session expired. Please start again."
	case errors.Is(err, linking.ErrProviderUnreachable):
		return "The identity provider could not be reached. Please try again shortly."
	case errors.Is(err, linking.ErrProvider), errors.Is(err, linking.ErrProfileFetch):
		return "The identity provider returned an error. Please try again."
	case errors.Is(err, linking.ErrNoDevices):
		return "Your account was linked, but no fireplaces were found. Register a fireplace and link again."
	case errors.Is(err, linking.ErrMisconfigured):
		return "The server is misconfigured. Please contact support."
	default:
		return "Something went wrong while linking your account. Please try again."
	}
}

// callbackURL is the redirect target registered with the provider.
func (s *Server) callbackURL() string {
	return s.site.BaseURL + "/link/callback"
}
