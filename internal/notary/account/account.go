// Package account implements the fixed-size on-ledger layout of notary
// records: an 8-byte type discriminator followed by the borsh encoding of the
// record, zero padded to the record's reserved space.
package account

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"

	"credentia/internal/notary/models"
	"credentia/pkg/platform/sentinel"
)

// Reserved body sizes (excluding the discriminator). Strings reserve a 4-byte
// length prefix plus their 256-byte cap.
const (
	CommitmentLen  = 4 + 256 + 32 + 32 + 8
	AttestationLen = 4 + 256 + 32 + 32 + 64 + 8
	InstitutionLen = 32 + 4 + 256 + 1

	DiscriminatorLen = 8
)

// Type names feed the discriminator hash.
const (
	TypeCredentialCommitment  = "CredentialCommitment"
	TypeCredentialAttestation = "CredentialAttestation"
	TypeInstitution           = "Institution"
)

var (
	commitmentDiscriminator  = discriminator(TypeCredentialCommitment)
	attestationDiscriminator = discriminator(TypeCredentialAttestation)
	institutionDiscriminator = discriminator(TypeInstitution)
)

// ErrOversized is returned when an encoded body exceeds its reserved space.
var ErrOversized = errors.New("encoded record exceeds reserved account space")

type commitmentLayout struct {
	CredentialID   string
	OwnerDID       [32]byte
	CredentialHash [32]byte
	Timestamp      int64
}

type attestationLayout struct {
	CredentialID      string
	CredentialHash    [32]byte
	InstitutionPubkey [32]byte
	Signature         [64]byte
	Timestamp         int64
}

type institutionLayout struct {
	Pubkey        [32]byte
	Name          string
	IsWhitelisted bool
}

func discriminator(typeName string) [DiscriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + typeName))
	var d [DiscriminatorLen]byte
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// Size returns the total account space for a record type name.
func Size(typeName string) int {
	switch typeName {
	case TypeCredentialCommitment:
		return DiscriminatorLen + CommitmentLen
	case TypeCredentialAttestation:
		return DiscriminatorLen + AttestationLen
	case TypeInstitution:
		return DiscriminatorLen + InstitutionLen
	default:
		return 0
	}
}

func EncodeCommitment(c *models.CredentialCommitment) ([]byte, error) {
	return encode(commitmentDiscriminator, CommitmentLen, commitmentLayout{
		CredentialID:   c.CredentialID,
		OwnerDID:       c.OwnerIdentity,
		CredentialHash: c.CredentialHash,
		Timestamp:      c.Timestamp,
	})
}

func DecodeCommitment(data []byte) (*models.CredentialCommitment, error) {
	var l commitmentLayout
	if err := decode(data, commitmentDiscriminator, 4+len32(data)+32+32+8, &l); err != nil {
		return nil, err
	}
	return &models.CredentialCommitment{
		CredentialID:   l.CredentialID,
		OwnerIdentity:  solana.PublicKey(l.OwnerDID),
		CredentialHash: models.CredentialHash(l.CredentialHash),
		Timestamp:      l.Timestamp,
	}, nil
}

func EncodeAttestation(a *models.CredentialAttestation) ([]byte, error) {
	return encode(attestationDiscriminator, AttestationLen, attestationLayout{
		CredentialID:      a.CredentialID,
		CredentialHash:    a.CredentialHash,
		InstitutionPubkey: a.InstitutionIdentity,
		Signature:         a.Signature,
		Timestamp:         a.Timestamp,
	})
}

func DecodeAttestation(data []byte) (*models.CredentialAttestation, error) {
	var l attestationLayout
	if err := decode(data, attestationDiscriminator, 4+len32(data)+32+32+64+8, &l); err != nil {
		return nil, err
	}
	return &models.CredentialAttestation{
		CredentialID:        l.CredentialID,
		CredentialHash:      models.CredentialHash(l.CredentialHash),
		InstitutionIdentity: solana.PublicKey(l.InstitutionPubkey),
		Signature:           solana.Signature(l.Signature),
		Timestamp:           l.Timestamp,
	}, nil
}

func EncodeInstitution(i *models.Institution) ([]byte, error) {
	return encode(institutionDiscriminator, InstitutionLen, institutionLayout{
		Pubkey:        i.Identity,
		Name:          i.Name,
		IsWhitelisted: i.IsWhitelisted,
	})
}

func DecodeInstitution(data []byte) (*models.Institution, error) {
	var l institutionLayout
	// The name length prefix sits after the 32-byte pubkey.
	var nameLen int
	if len(data) >= DiscriminatorLen+32+4 {
		nameLen = int(binary.LittleEndian.Uint32(data[DiscriminatorLen+32:]))
	}
	if err := decode(data, institutionDiscriminator, 32+4+nameLen+1, &l); err != nil {
		return nil, err
	}
	return &models.Institution{
		Identity:      solana.PublicKey(l.Pubkey),
		Name:          l.Name,
		IsWhitelisted: l.IsWhitelisted,
	}, nil
}

// TypeOf reports the record type stored in data, or "" if unknown.
func TypeOf(data []byte) string {
	if len(data) < DiscriminatorLen {
		return ""
	}
	var d [DiscriminatorLen]byte
	copy(d[:], data)
	switch d {
	case commitmentDiscriminator:
		return TypeCredentialCommitment
	case attestationDiscriminator:
		return TypeCredentialAttestation
	case institutionDiscriminator:
		return TypeInstitution
	default:
		return ""
	}
}

func encode(disc [DiscriminatorLen]byte, space int, layout any) ([]byte, error) {
	body, err := borsh.Serialize(layout)
	if err != nil {
		return nil, fmt.Errorf("borsh serialize: %w", err)
	}
	if len(body) > space {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversized, len(body), space)
	}
	out := make([]byte, DiscriminatorLen+space)
	copy(out, disc[:])
	copy(out[DiscriminatorLen:], body)
	return out, nil
}

// decode checks the discriminator and deserializes exactly bodyLen bytes; the
// remainder of the account is padding.
func decode(data []byte, disc [DiscriminatorLen]byte, bodyLen int, out any) error {
	if len(data) < DiscriminatorLen || !bytes.Equal(data[:DiscriminatorLen], disc[:]) {
		return fmt.Errorf("account discriminator mismatch: %w", sentinel.ErrInvalidState)
	}
	body := data[DiscriminatorLen:]
	if bodyLen > len(body) {
		return fmt.Errorf("account data truncated: %w", sentinel.ErrInvalidState)
	}
	if err := borsh.Deserialize(out, body[:bodyLen]); err != nil {
		return fmt.Errorf("borsh deserialize: %v: %w", err, sentinel.ErrInvalidState)
	}
	return nil
}

// len32 reads the leading string length prefix of a record body.
func len32(data []byte) int {
	if len(data) < DiscriminatorLen+4 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(data[DiscriminatorLen:]))
}
