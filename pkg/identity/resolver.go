package identity

import (
	"fmt"

	"tradetalk/pkg/models"
	"tradetalk/pkg/store"
)

// Resolve maps an opaque participant reference onto its canonical
// identity. Account IDs are tried first, then contractor profile IDs;
// a contractor resolves to its owning account for delivery addressing.
func Resolve(ref models.Participant) (models.Resolved, error) {
	// an explicit kind skips the probe order
	switch ref.Kind {
	case models.KindUser:
		return resolveAccount(ref.ID)
	case models.KindContractor:
		return resolveContractor(ref.ID)
	}

	if r, err := resolveAccount(ref.ID); err == nil {
		return r, nil
	} else if !store.IsNotFound(err) {
		return models.Resolved{}, err
	}
	if r, err := resolveContractor(ref.ID); err == nil {
		return r, nil
	} else if !store.IsNotFound(err) {
		return models.Resolved{}, err
	}
	return models.Resolved{}, fmt.Errorf("participant %s: %w", ref.ID, store.ErrNotFound)
}

func resolveAccount(id string) (models.Resolved, error) {
	a, err := store.GetAccount(id)
	if err != nil {
		return models.Resolved{}, err
	}
	return models.Resolved{
		Kind:        models.KindUser,
		ID:          a.ID,
		AccountID:   a.ID,
		DisplayName: a.DisplayName,
	}, nil
}

func resolveContractor(id string) (models.Resolved, error) {
	c, err := store.GetContractor(id)
	if err != nil {
		return models.Resolved{}, err
	}
	return models.Resolved{
		Kind:        models.KindContractor,
		ID:          c.ID,
		AccountID:   c.AccountID,
		DisplayName: c.BusinessName,
	}, nil
}

// ResolveCallerSendIdentity returns the identity a caller sends as.
// Contractors send as their business profile while remaining addressed
// by account ID; plain users send as their account.
func ResolveCallerSendIdentity(accountID string, role models.Kind) (models.Resolved, error) {
	if role == models.KindContractor {
		c, err := store.ContractorForAccount(accountID)
		if err != nil {
			if store.IsNotFound(err) {
				return models.Resolved{}, fmt.Errorf("caller %s: %w", accountID, store.ErrSenderNotFound)
			}
			return models.Resolved{}, err
		}
		return models.Resolved{
			Kind:        models.KindContractor,
			ID:          c.ID,
			AccountID:   c.AccountID,
			DisplayName: c.BusinessName,
		}, nil
	}
	r, err := resolveAccount(accountID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Resolved{}, fmt.Errorf("caller %s: %w", accountID, store.ErrSenderNotFound)
		}
		return models.Resolved{}, err
	}
	return r, nil
}

// CandidateIDs returns the identity set a counterpart may have used to
// address the caller: the account ID always, plus the contractor
// profile ID when the caller owns one.
func CandidateIDs(accountID string) ([]string, error) {
	ids := []string{accountID}
	c, err := store.ContractorForAccount(accountID)
	if err != nil {
		if store.IsNotFound(err) {
			return ids, nil
		}
		return nil, err
	}
	return append(ids, c.ID), nil
}
