package account

import (
	"context"
	"errors"
	"fmt"
)

// Resolver maps an inbound bearer token to the account it belongs to.
//
// The token itself is opaque to this component: validity and claim
// extraction are the identity provider's concern. The resolver performs
// only the local lookup from token to linked identity to account.
//
// Resolution failure is never fatal to request processing. Callers render
// a protocol-specific error response; discovery degrades to an empty
// endpoint list instead.
//
// Thread Safety: Resolver is read-only and safe for concurrent use.
type Resolver struct {
	accounts   Repository
	identities IdentityRepository
}

// NewResolver creates a resolver over the given repositories.
func NewResolver(accounts Repository, identities IdentityRepository) *Resolver {
	return &Resolver{
		accounts:   accounts,
		identities: identities,
	}
}

// Resolve returns the account associated with a bearer token.
//
// Returns ErrTokenInvalid for an empty token and ErrAccountNotFound when
// no linked identity holds the token or the referenced account is gone.
func (r *Resolver) Resolve(ctx context.Context, bearerToken string) (*Account, error) {
	if bearerToken == "" {
		return nil, ErrTokenInvalid
	}

	ident, err := r.identities.GetByAccessToken(ctx, bearerToken)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("resolving token: %w", err)
	}

	acc, err := r.accounts.Get(ctx, ident.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("loading account %s: %w", ident.AccountID, err)
	}

	return acc, nil
}
