package account

import "time"

// PlaceholderName is the display name given to provisional accounts
// created when a device-control session starts before linking completes.
// Linking either promotes (renames) the placeholder or replaces it.
const PlaceholderName = "placeholder"

// Account is an identity owned by the device cloud.
//
// Accounts are never deleted while devices reference them; removal
// cascades through the account-device associations.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// LinkCode is the session-correlation id carried through the OAuth
	// redirect "state" parameter. Set on placeholder accounts so the
	// linking callback can find the session that started the flow.
	LinkCode string `json:"link_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPlaceholder reports whether the account is still provisional.
func (a *Account) IsPlaceholder() bool {
	return a.Name == PlaceholderName
}

// LinkedIdentity associates an Account with an external voice-platform
// identity. At most one per external user id.
type LinkedIdentity struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	ExternalUserID string `json:"external_user_id"`
	Email          string `json:"email,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`

	// AccessToken is the bearer token the voice platform presents on
	// directives; resolving it to an account is the directory's inbound
	// authentication.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
