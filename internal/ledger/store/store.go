// Package store holds the ledger backends. Every backend guarantees atomic
// create-if-absent per address and returns sentinel errors for infrastructure
// facts: sentinel.ErrAlreadyUsed when an address is occupied and
// sentinel.ErrNotFound when it is empty.
package store

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"credentia/internal/ledger"
	"credentia/pkg/platform/sentinel"
)

func validate(acct ledger.Account) error {
	if acct.Address.IsZero() {
		return fmt.Errorf("account address is required")
	}
	if !acct.Kind.Valid() {
		return fmt.Errorf("unknown account kind %q", acct.Kind)
	}
	if len(acct.Data) == 0 {
		return fmt.Errorf("account data is required")
	}
	return nil
}

// ownerKeyOf renders the stored owner; the zero key is stored as "".
func ownerKeyOf(owner solana.PublicKey) string {
	if owner.IsZero() {
		return ""
	}
	return owner.String()
}

func parseStoredOwner(owner string) (solana.PublicKey, error) {
	if owner == "" {
		return solana.PublicKey{}, nil
	}
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("stored owner %q: %v: %w", owner, err, sentinel.ErrInvalidState)
	}
	return pk, nil
}

// sortAccountsNewestFirst orders owner listings: most recent first, then
// address.
func sortAccountsNewestFirst(accts []ledger.Account) {
	sort.Slice(accts, func(i, j int) bool {
		if !accts[i].CreatedAt.Equal(accts[j].CreatedAt) {
			return accts[i].CreatedAt.After(accts[j].CreatedAt)
		}
		return accts[i].Address.String() < accts[j].Address.String()
	})
}

// sortAccounts orders accounts by creation time, then address, so listings
// are stable across backends.
func sortAccounts(accts []ledger.Account) {
	sort.Slice(accts, func(i, j int) bool {
		if !accts[i].CreatedAt.Equal(accts[j].CreatedAt) {
			return accts[i].CreatedAt.Before(accts[j].CreatedAt)
		}
		return accts[i].Address.String() < accts[j].Address.String()
	})
}
