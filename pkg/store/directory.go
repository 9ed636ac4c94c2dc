package store

import (
	"encoding/json"
	"fmt"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
)

// SaveAccount stores an account directory record.
func SaveAccount(a models.Account) error {
	if a.ID == "" {
		return fmt.Errorf("account id required")
	}
	if a.CreatedTS == 0 {
		a.CreatedTS = time.Now().UTC().UnixNano()
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := SaveKey(accountKey(a.ID), b); err != nil {
		return err
	}
	logger.Info("account_saved", "id", a.ID)
	return nil
}

// GetAccount returns the account record for the given ID.
func GetAccount(id string) (models.Account, error) {
	var a models.Account
	s, err := GetKey(accountKey(id))
	if err != nil {
		return a, normalizeNotFound(err)
	}
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return a, fmt.Errorf("invalid account record: %w", err)
	}
	return a, nil
}

// SaveContractor stores a contractor profile and indexes it under its
// owning account. The owning account must exist.
func SaveContractor(c models.Contractor) error {
	if c.ID == "" || c.AccountID == "" {
		return fmt.Errorf("contractor id and account_id required")
	}
	if _, err := GetAccount(c.AccountID); err != nil {
		return fmt.Errorf("owning account %s: %w", c.AccountID, err)
	}
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().UTC().UnixNano()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal contractor: %w", err)
	}
	if err := SaveKey(contractorKey(c.ID), b); err != nil {
		return err
	}
	if err := SaveKey(contractorOwnerKey(c.AccountID, c.ID), []byte(c.ID)); err != nil {
		return err
	}
	logger.Info("contractor_saved", "id", c.ID, "account", c.AccountID)
	return nil
}

// GetContractor returns the contractor profile for the given ID.
func GetContractor(id string) (models.Contractor, error) {
	var c models.Contractor
	s, err := GetKey(contractorKey(id))
	if err != nil {
		return c, normalizeNotFound(err)
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return c, fmt.Errorf("invalid contractor record: %w", err)
	}
	return c, nil
}

// ContractorForAccount returns the first contractor profile owned by the
// account, or ErrNotFound when the account has none.
func ContractorForAccount(accountID string) (models.Contractor, error) {
	var found string
	err := scanPrefix(contractorOwnerPrefix(accountID), func(_ string, val []byte) bool {
		found = string(val)
		return false
	})
	if err != nil {
		return models.Contractor{}, err
	}
	if found == "" {
		return models.Contractor{}, ErrNotFound
	}
	return GetContractor(found)
}
