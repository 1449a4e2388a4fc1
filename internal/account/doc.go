// Package account provides accounts, linked identities, and bearer-token
// resolution for Hearth Bridge.
//
// An Account is the device cloud's own identity; a LinkedIdentity ties an
// account to an external voice-platform user. Devices discovered before a
// user finishes linking hang off a placeholder account, which the linking
// workflow later promotes or folds into the resolved account.
//
// The Resolver is the inbound authentication path: every smart-home
// directive carries a bearer token, and Resolve maps it to an account via
// the linked-identity store.
package account
