package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"credentia/internal/ledger"
	"credentia/pkg/platform/sentinel"
)

// InMemory keeps accounts in process. Atomically serializes callers on a
// writer lock so read-check-write sequences behave like a single transaction.
type InMemory struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	accounts map[solana.PublicKey]ledger.Account
	index    map[indexKey][]solana.PublicKey
	owners   map[ownerKey][]solana.PublicKey
}

type indexKey struct {
	kind         ledger.Kind
	credentialID string
}

type ownerKey struct {
	kind  ledger.Kind
	owner solana.PublicKey
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[solana.PublicKey]ledger.Account),
		index:    make(map[indexKey][]solana.PublicKey),
		owners:   make(map[ownerKey][]solana.PublicKey),
	}
}

func (s *InMemory) CreateIfAbsent(_ context.Context, acct ledger.Account) error {
	if err := validate(acct); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.Address]; ok {
		return sentinel.ErrAlreadyUsed
	}
	acct.Data = bytes.Clone(acct.Data)
	s.accounts[acct.Address] = acct
	if acct.CredentialID != "" {
		key := indexKey{kind: acct.Kind, credentialID: acct.CredentialID}
		s.index[key] = append(s.index[key], acct.Address)
	}
	if !acct.Owner.IsZero() {
		key := ownerKey{kind: acct.Kind, owner: acct.Owner}
		s.owners[key] = append(s.owners[key], acct.Address)
	}
	return nil
}

func (s *InMemory) Get(_ context.Context, addr solana.PublicKey) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return ledger.Account{}, sentinel.ErrNotFound
	}
	acct.Data = bytes.Clone(acct.Data)
	return acct, nil
}

// GetMany returns the accounts stored at addrs, skipping empty addresses.
func (s *InMemory) GetMany(_ context.Context, addrs []solana.PublicKey) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(addrs))
	for _, addr := range addrs {
		acct, ok := s.accounts[addr]
		if !ok {
			continue
		}
		acct.Data = bytes.Clone(acct.Data)
		out = append(out, acct)
	}
	sortAccounts(out)
	return out, nil
}

func (s *InMemory) ListByCredential(_ context.Context, kind ledger.Kind, credentialID string) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.collect(s.index[indexKey{kind: kind, credentialID: credentialID}])
	sortAccounts(out)
	return out, nil
}

// ListByOwner returns the accounts of kind owned by owner, newest first.
func (s *InMemory) ListByOwner(_ context.Context, kind ledger.Kind, owner solana.PublicKey) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.collect(s.owners[ownerKey{kind: kind, owner: owner}])
	sortAccountsNewestFirst(out)
	return out, nil
}

// collect copies the accounts at addrs. Callers hold mu.
func (s *InMemory) collect(addrs []solana.PublicKey) []ledger.Account {
	out := make([]ledger.Account, 0, len(addrs))
	for _, addr := range addrs {
		acct := s.accounts[addr]
		acct.Data = bytes.Clone(acct.Data)
		out = append(out, acct)
	}
	return out
}

func (s *InMemory) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

// Count returns the number of stored accounts of a kind.
func (s *InMemory) Count(_ context.Context, kind ledger.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, acct := range s.accounts {
		if acct.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) Health(context.Context) error { return nil }

func (s *InMemory) Close() error { return nil }
