// Package address derives the deterministic account addresses that give each
// record its create-once identity. Addresses are Solana program-derived
// addresses over a namespace tag and the record's semantic key.
package address

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Namespace tags. They are part of the address scheme and must not change.
const (
	TagCredential  = "credential"
	TagAttestation = "attestation"
	TagInstitution = "institution"
)

// maxSeedLen is the per-seed byte cap of program address derivation.
const maxSeedLen = 32

// DefaultProgramID is the program the address scheme was first deployed under.
var DefaultProgramID = solana.MustPublicKeyFromBase58("Fg6PaFpoGkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

// Derived is an address together with the bump seed that produced it.
type Derived struct {
	Address solana.PublicKey `json:"address"`
	Bump    uint8            `json:"bump"`
}

// Deriver computes addresses under a fixed program id.
type Deriver struct {
	programID solana.PublicKey
}

func New(programID solana.PublicKey) *Deriver {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Deriver{programID: programID}
}

func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// Commitment derives the address for a credential commitment.
func (d *Deriver) Commitment(credentialID string) (Derived, error) {
	seeds := append([][]byte{[]byte(TagCredential)}, splitSeed([]byte(credentialID))...)
	return d.find(seeds)
}

// Attestation derives the address for one institution's attestation of a credential.
func (d *Deriver) Attestation(credentialID string, institution solana.PublicKey) (Derived, error) {
	seeds := append([][]byte{[]byte(TagAttestation)}, splitSeed([]byte(credentialID))...)
	seeds = append(seeds, institution.Bytes())
	return d.find(seeds)
}

// Institution derives the address of an institution record.
func (d *Deriver) Institution(identity solana.PublicKey) (Derived, error) {
	return d.find([][]byte{[]byte(TagInstitution), identity.Bytes()})
}

func (d *Deriver) find(seeds [][]byte) (Derived, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return Derived{}, fmt.Errorf("derive program address: %w", err)
	}
	return Derived{Address: addr, Bump: bump}, nil
}

// splitSeed cuts a long seed into 32-byte chunks. Derivation hashes the
// concatenation of all seeds, so ids up to 32 bytes map to the same address a
// single-seed derivation would produce.
func splitSeed(b []byte) [][]byte {
	if len(b) <= maxSeedLen {
		return [][]byte{b}
	}
	chunks := make([][]byte, 0, (len(b)+maxSeedLen-1)/maxSeedLen)
	for len(b) > maxSeedLen {
		chunks = append(chunks, b[:maxSeedLen])
		b = b[maxSeedLen:]
	}
	return append(chunks, b)
}
