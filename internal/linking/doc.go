// Package linking implements the OAuth account-linking flow: exchanging
// the callback's authorization code for a grant, fetching the external
// profile, resolving the internal account and re-associating the devices
// discovered before linking completed.
package linking
