package linking

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/emberfield/hearth-bridge/internal/account"
	"github.com/emberfield/hearth-bridge/internal/device"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
)

// Provider is the identity-provider surface the workflow depends on.
type Provider interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Grant, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Summary reports the outcome of a completed linking run.
type Summary struct {
	Account        *account.Account
	AccountCreated bool
	Promoted       bool
	DevicesLinked  int
}

// Workflow runs the account-linking pipeline: code exchange, profile
// fetch, account resolution and device re-association.
//
// Account resolution is idempotent under repeated attempts for the same
// external identity: an existing linked identity is reused and updated,
// never duplicated. The placeholder account created at session start is
// promoted when it becomes the final account, and deleted only when a
// different account won and nothing references it anymore.
type Workflow struct {
	provider    Provider
	accounts    account.Repository
	identities  account.IdentityRepository
	directory   device.Directory
	redirectURI string
	logger      *logging.Logger
}

// NewWorkflow creates a linking workflow.
func NewWorkflow(
	provider Provider,
	accounts account.Repository,
	identities account.IdentityRepository,
	directory device.Directory,
	redirectURI string,
	logger *logging.Logger,
) *Workflow {
	return &Workflow{
		provider:    provider,
		accounts:    accounts,
		identities:  identities,
		directory:   directory,
		redirectURI: redirectURI,
		logger:      logger,
	}
}

// Link runs the pipeline for one callback. code is the authorization
// code from the provider redirect; state is the session-correlation id
// issued when the flow started.
func (w *Workflow) Link(ctx context.Context, code, state string) (*Summary, error) {
	// The provider round-trips and the local placeholder lookup are
	// independent, so they run concurrently and join here.
	var profile *Profile
	var grant *Grant
	var placeholder *account.Account
	var sessionDevices []device.Device

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gr, err := w.provider.ExchangeCode(gctx, code, w.redirectURI)
		if err != nil {
			return err
		}
		p, err := w.provider.FetchProfile(gctx, gr.AccessToken)
		if err != nil {
			return err
		}
		grant, profile = gr, p
		return nil
	})
	g.Go(func() error {
		acct, err := w.accounts.GetByLinkCode(gctx, state)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				return nil
			}
			return fmt.Errorf("placeholder lookup: %w", err)
		}
		devices, err := w.directory.DevicesFor(gctx, acct.ID)
		if err != nil {
			return fmt.Errorf("session device lookup: %w", err)
		}
		placeholder, sessionDevices = acct, devices
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary, err := w.resolveAccount(ctx, profile, grant, placeholder)
	if err != nil {
		return nil, err
	}
	final := summary.Account

	for i := range sessionDevices {
		resolved, err := w.directory.UpsertByAddress(ctx, &sessionDevices[i])
		if err != nil {
			w.logger.Error("device reconciliation failed",
				"control_address", sessionDevices[i].ControlAddress,
				"error", err,
			)
			continue
		}
		status := device.LinkStatusFor(resolved.PowerSource)
		if err := w.directory.SetLink(ctx, final.ID, resolved.ID, status); err != nil {
			w.logger.Error("device linking failed", "device_id", resolved.ID, "error", err)
			continue
		}
		summary.DevicesLinked++
	}

	w.cleanupPlaceholder(ctx, placeholder, final)

	if summary.DevicesLinked == 0 {
		if devices, err := w.directory.DevicesFor(ctx, final.ID); err != nil || len(devices) == 0 {
			return summary, ErrNoDevices
		}
	}

	w.logger.Info("account linked",
		"account_id", final.ID,
		"created", summary.AccountCreated,
		"promoted", summary.Promoted,
		"devices_linked", summary.DevicesLinked,
	)
	return summary, nil
}

// resolveAccount picks the final account for an external identity.
//
// Priority order: an account already holding the external identity wins;
// otherwise the session's placeholder is promoted; otherwise a fresh
// account is created. All three branches leave exactly one LinkedIdentity
// for the external user id.
func (w *Workflow) resolveAccount(ctx context.Context, profile *Profile, grant *Grant, placeholder *account.Account) (*Summary, error) {
	ident, err := w.identities.GetByExternalUserID(ctx, profile.UserID)
	switch {
	case err == nil:
		acct, err := w.accounts.Get(ctx, ident.AccountID)
		if err != nil {
			return nil, fmt.Errorf("%w: identity account missing: %w", ErrAccountCreate, err)
		}
		applyProfile(ident, profile, grant)
		if err := w.identities.Update(ctx, ident); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAccountCreate, err)
		}
		return &Summary{Account: acct}, nil

	case !errors.Is(err, account.ErrIdentityNotFound):
		return nil, fmt.Errorf("%w: %w", ErrAccountCreate, err)
	}

	if placeholder != nil {
		if err := w.accounts.Rename(ctx, placeholder.ID, accountName(profile)); err != nil {
			return nil, fmt.Errorf("%w: promoting placeholder: %w", ErrAccountCreate, err)
		}
		if err := w.createIdentity(ctx, placeholder.ID, profile, grant); err != nil {
			return nil, err
		}
		placeholder.Name = accountName(profile)
		return &Summary{Account: placeholder, Promoted: true}, nil
	}

	acct := &account.Account{Name: accountName(profile)}
	if err := w.accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccountCreate, err)
	}
	if err := w.createIdentity(ctx, acct.ID, profile, grant); err != nil {
		return nil, err
	}
	return &Summary{Account: acct, AccountCreated: true}, nil
}

// createIdentity persists a fresh LinkedIdentity for the account.
func (w *Workflow) createIdentity(ctx context.Context, accountID string, profile *Profile, grant *Grant) error {
	ident := &account.LinkedIdentity{AccountID: accountID}
	applyProfile(ident, profile, grant)
	if err := w.identities.Create(ctx, ident); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountCreate, err)
	}
	return nil
}

// cleanupPlaceholder deletes the session placeholder when a different
// account won the resolution and nothing references it anymore.
func (w *Workflow) cleanupPlaceholder(ctx context.Context, placeholder, final *account.Account) {
	if placeholder == nil || placeholder.ID == final.ID {
		return
	}

	referenced, err := w.identities.ExistsForAccount(ctx, placeholder.ID)
	if err != nil || referenced {
		return
	}

	// Cascades remove the placeholder's now-orphaned device links.
	if err := w.accounts.Delete(ctx, placeholder.ID); err != nil {
		w.logger.Warn("placeholder cleanup failed", "account_id", placeholder.ID, "error", err)
		return
	}
	w.logger.Debug("orphan placeholder deleted", "account_id", placeholder.ID)
}

// applyProfile copies profile fields and token material onto an identity.
func applyProfile(ident *account.LinkedIdentity, profile *Profile, grant *Grant) {
	ident.ExternalUserID = profile.UserID
	ident.Email = profile.Email
	ident.PostalCode = profile.PostalCode
	ident.AccessToken = grant.AccessToken
	ident.RefreshToken = grant.RefreshToken
}

// accountName picks a display name for a resolved account.
func accountName(profile *Profile) string {
	if profile.Name != "" {
		return profile.Name
	}
	if profile.Email != "" {
		return profile.Email
	}
	return profile.UserID
}
