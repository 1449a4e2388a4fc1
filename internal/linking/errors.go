package linking

import "errors"

// Linking-layer errors. This taxonomy is browser-facing: the callback
// handler renders each as a human-readable failure page with a retry
// link, never as a protocol envelope.
var (
	// ErrMisconfigured indicates missing OAuth client configuration.
	ErrMisconfigured = errors.New("linking: server misconfigured")

	// ErrInvalidCode indicates the authorization code was rejected by
	// the provider (expired, already used, or forged).
	ErrInvalidCode = errors.New("linking: invalid authorization code")

	// ErrProvider indicates the identity provider returned an error
	// other than code rejection.
	ErrProvider = errors.New("linking: identity provider error")

	// ErrProviderUnreachable indicates a transport failure talking to
	// the identity provider.
	ErrProviderUnreachable = errors.New("linking: identity provider unreachable")

	// ErrProfileFetch indicates the profile endpoint refused the grant.
	ErrProfileFetch = errors.New("linking: profile fetch failed")

	// ErrAccountCreate indicates the final account or identity could
	// not be persisted.
	ErrAccountCreate = errors.New("linking: could not create account")

	// ErrNoDevices indicates linking completed but no devices ended up
	// associated with the account.
	ErrNoDevices = errors.New("linking: no devices to link")
)
