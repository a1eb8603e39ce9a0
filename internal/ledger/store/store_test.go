package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"credentia/internal/ledger"
	"credentia/pkg/platform/sentinel"
)

type ledgerStore interface {
	CreateIfAbsent(ctx context.Context, acct ledger.Account) error
	Get(ctx context.Context, addr solana.PublicKey) (ledger.Account, error)
	GetMany(ctx context.Context, addrs []solana.PublicKey) ([]ledger.Account, error)
	ListByCredential(ctx context.Context, kind ledger.Kind, credentialID string) ([]ledger.Account, error)
	ListByOwner(ctx context.Context, kind ledger.Kind, owner solana.PublicKey) ([]ledger.Account, error)
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
	Count(ctx context.Context, kind ledger.Kind) (int, error)
}

// backendSuite holds behavior every backend must share. Backend suites embed
// it and assign store in SetupTest.
type backendSuite struct {
	suite.Suite
	store ledgerStore
}

var baseTime = time.Unix(1_700_000_000, 0).UTC()

func newAddress() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func newAccount(kind ledger.Kind, credentialID string, offset time.Duration) ledger.Account {
	return ledger.Account{
		Address:      newAddress(),
		Kind:         kind,
		CredentialID: credentialID,
		Data:         []byte{1, 2, 3, byte(offset / time.Second)},
		CreatedAt:    baseTime.Add(offset),
	}
}

func newOwnedAccount(credentialID string, owner solana.PublicKey, offset time.Duration) ledger.Account {
	acct := newAccount(ledger.KindCommitment, credentialID, offset)
	acct.Owner = owner
	return acct
}

func (s *backendSuite) TestCreateAndGet() {
	ctx := context.Background()
	acct := newOwnedAccount("cred-1", newAddress(), 0)

	s.Require().NoError(s.store.CreateIfAbsent(ctx, acct))

	got, err := s.store.Get(ctx, acct.Address)
	s.Require().NoError(err)
	s.Equal(acct.Address, got.Address)
	s.Equal(acct.Kind, got.Kind)
	s.Equal(acct.CredentialID, got.CredentialID)
	s.Equal(acct.Owner, got.Owner)
	s.Equal(acct.Data, got.Data)
	s.True(acct.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", acct.CreatedAt, got.CreatedAt)

	unowned := newAccount(ledger.KindInstitution, "", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, unowned))
	got, err = s.store.Get(ctx, unowned.Address)
	s.Require().NoError(err)
	s.True(got.Owner.IsZero())
}

// TestCredentialIDWithNUL checks that ids differing only after an embedded
// NUL byte are stored and indexed as distinct values.
func (s *backendSuite) TestCredentialIDWithNUL() {
	ctx := context.Background()
	ab := newAccount(ledger.KindCommitment, "a\x00b", 0)
	ac := newAccount(ledger.KindCommitment, "a\x00c", time.Second)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, ab))
	s.Require().NoError(s.store.CreateIfAbsent(ctx, ac))

	got, err := s.store.Get(ctx, ab.Address)
	s.Require().NoError(err)
	s.Equal("a\x00b", got.CredentialID)

	listed, err := s.store.ListByCredential(ctx, ledger.KindCommitment, "a\x00c")
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(ac.Address, listed[0].Address)
	s.Equal("a\x00c", listed[0].CredentialID)

	none, err := s.store.ListByCredential(ctx, ledger.KindCommitment, "a")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *backendSuite) TestListByOwner() {
	ctx := context.Background()
	owner := newAddress()
	oldest := newOwnedAccount("cred-owned-1", owner, time.Second)
	newest := newOwnedAccount("cred-owned-3", owner, 3*time.Second)
	middle := newOwnedAccount("cred-owned-2", owner, 2*time.Second)
	someoneElse := newOwnedAccount("cred-other-owner", newAddress(), 4*time.Second)
	for _, acct := range []ledger.Account{oldest, newest, middle, someoneElse} {
		s.Require().NoError(s.store.CreateIfAbsent(ctx, acct))
	}
	s.Require().NoError(s.store.CreateIfAbsent(ctx, newAccount(ledger.KindAttestation, "cred-owned-1", 5*time.Second)))
	s.Require().NoError(s.store.CreateIfAbsent(ctx, newAccount(ledger.KindInstitution, "", 6*time.Second)))

	s.Run("newest first", func() {
		got, err := s.store.ListByOwner(ctx, ledger.KindCommitment, owner)
		s.Require().NoError(err)
		s.Require().Len(got, 3)
		s.Equal(newest.Address, got[0].Address)
		s.Equal(middle.Address, got[1].Address)
		s.Equal(oldest.Address, got[2].Address)
		for _, acct := range got {
			s.Equal(owner, acct.Owner)
		}
	})

	s.Run("other kinds are not owner indexed", func() {
		got, err := s.store.ListByOwner(ctx, ledger.KindAttestation, owner)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("unknown owner", func() {
		got, err := s.store.ListByOwner(ctx, ledger.KindCommitment, newAddress())
		s.Require().NoError(err)
		s.NotNil(got)
		s.Empty(got)
	})

	s.Run("zero owner matches nothing", func() {
		got, err := s.store.ListByOwner(ctx, ledger.KindInstitution, solana.PublicKey{})
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *backendSuite) TestCreateTwiceKeepsFirstRecord() {
	ctx := context.Background()
	first := newAccount(ledger.KindCommitment, "cred-dup", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, first))

	second := first
	second.Data = []byte{9, 9, 9}
	err := s.store.CreateIfAbsent(ctx, second)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	got, err := s.store.Get(ctx, first.Address)
	s.Require().NoError(err)
	s.Equal(first.Data, got.Data)

	n, err := s.store.Count(ctx, ledger.KindCommitment)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *backendSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), newAddress())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *backendSuite) TestCreateRejectsInvalidAccount() {
	ctx := context.Background()

	s.Run("zero address", func() {
		acct := newAccount(ledger.KindCommitment, "x", 0)
		acct.Address = solana.PublicKey{}
		s.Error(s.store.CreateIfAbsent(ctx, acct))
	})
	s.Run("unknown kind", func() {
		acct := newAccount(ledger.Kind("bogus"), "x", 0)
		s.Error(s.store.CreateIfAbsent(ctx, acct))
	})
	s.Run("empty data", func() {
		acct := newAccount(ledger.KindCommitment, "x", 0)
		acct.Data = nil
		s.Error(s.store.CreateIfAbsent(ctx, acct))
	})
}

func (s *backendSuite) TestListByCredential() {
	ctx := context.Background()
	later := newAccount(ledger.KindAttestation, "cred-list", 2*time.Second)
	earlier := newAccount(ledger.KindAttestation, "cred-list", time.Second)
	other := newAccount(ledger.KindAttestation, "cred-other", 0)
	commitment := newAccount(ledger.KindCommitment, "cred-list", 0)
	for _, acct := range []ledger.Account{later, earlier, other, commitment} {
		s.Require().NoError(s.store.CreateIfAbsent(ctx, acct))
	}

	got, err := s.store.ListByCredential(ctx, ledger.KindAttestation, "cred-list")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(earlier.Address, got[0].Address)
	s.Equal(later.Address, got[1].Address)

	none, err := s.store.ListByCredential(ctx, ledger.KindAttestation, "cred-none")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *backendSuite) TestListByCredentialSameInstantOrdersByAddress() {
	ctx := context.Background()
	accts := make([]ledger.Account, 0, 4)
	for range 4 {
		acct := newAccount(ledger.KindAttestation, "cred-tie", time.Second)
		s.Require().NoError(s.store.CreateIfAbsent(ctx, acct))
		accts = append(accts, acct)
	}

	got, err := s.store.ListByCredential(ctx, ledger.KindAttestation, "cred-tie")
	s.Require().NoError(err)
	s.Require().Len(got, len(accts))
	for i := 1; i < len(got); i++ {
		s.Less(got[i-1].Address.String(), got[i].Address.String())
	}
}

func (s *backendSuite) TestGetManySkipsMissing() {
	ctx := context.Background()
	a := newAccount(ledger.KindInstitution, "", 0)
	b := newAccount(ledger.KindInstitution, "", time.Second)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, a))
	s.Require().NoError(s.store.CreateIfAbsent(ctx, b))

	got, err := s.store.GetMany(ctx, []solana.PublicKey{b.Address, newAddress(), a.Address})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(a.Address, got[0].Address)
	s.Equal(b.Address, got[1].Address)

	empty, err := s.store.GetMany(ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *backendSuite) TestAtomicallyReadsAndWrites() {
	ctx := context.Background()
	gate := newAccount(ledger.KindInstitution, "", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, gate))
	target := newAccount(ledger.KindAttestation, "cred-atomic", 0)

	err := s.store.Atomically(ctx, func(ctx context.Context) error {
		if _, err := s.store.Get(ctx, gate.Address); err != nil {
			return err
		}
		return s.store.CreateIfAbsent(ctx, target)
	})
	s.Require().NoError(err)

	_, err = s.store.Get(ctx, target.Address)
	s.NoError(err)
}

func (s *backendSuite) TestAtomicallyPropagatesError() {
	boom := errors.New("boom")
	err := s.store.Atomically(context.Background(), func(context.Context) error {
		return boom
	})
	s.ErrorIs(err, boom)
}

// TestConcurrentCreateSingleWinner verifies that concurrent creation at one
// address results in exactly one success.
func (s *backendSuite) TestConcurrentCreateSingleWinner() {
	ctx := context.Background()
	acct := newAccount(ledger.KindCommitment, "cred-race", 0)
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfAbsent(ctx, acct)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should see the address as used")

	listed, err := s.store.ListByCredential(ctx, ledger.KindCommitment, "cred-race")
	s.Require().NoError(err)
	s.Len(listed, 1)
}
