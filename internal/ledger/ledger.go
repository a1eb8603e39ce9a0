// Package ledger describes the record store the notary writes to: an
// address-keyed account table with create-once semantics.
package ledger

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Kind classifies stored accounts for indexing.
type Kind string

const (
	KindCommitment  Kind = "commitment"
	KindAttestation Kind = "attestation"
	KindInstitution Kind = "institution"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCommitment, KindAttestation, KindInstitution:
		return true
	}
	return false
}

// Account is one stored record. Data is the full serialized account,
// including discriminator and padding. CredentialID indexes commitments and
// attestations; it is empty for institutions. Owner indexes commitments by
// their owner and is the zero key for every other kind.
type Account struct {
	Address      solana.PublicKey
	Kind         Kind
	CredentialID string
	Owner        solana.PublicKey
	Data         []byte
	CreatedAt    time.Time
}
