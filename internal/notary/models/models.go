package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"

	dErrors "credentia/pkg/domain-errors"
)

const (
	// MaxCredentialIDLen is the encoded byte length cap for credential ids.
	MaxCredentialIDLen = 256
	// MaxInstitutionNameLen is the encoded byte length cap for institution names.
	MaxInstitutionNameLen = 256
	// HashSize is the digest length of a credential hash.
	HashSize = 32
	// SignatureSize is the length of an attestation signature blob.
	SignatureSize = 64
)

// CredentialHash is the 32-byte digest an owner commits to. It is rendered as
// lowercase hex on the wire.
type CredentialHash [HashSize]byte

// ParseCredentialHash decodes a hex digest, accepting an optional 0x prefix.
func ParseCredentialHash(s string) (CredentialHash, error) {
	var h CredentialHash
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return h, dErrors.New(dErrors.CodeValidation, "credential_hash must be hex encoded")
	}
	if len(raw) != HashSize {
		return h, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("credential_hash must be %d bytes, got %d", HashSize, len(raw)))
	}
	copy(h[:], raw)
	return h, nil
}

func (h CredentialHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h CredentialHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *CredentialHash) UnmarshalText(text []byte) error {
	parsed, err := ParseCredentialHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseSignature accepts a 64-byte signature as base58 (the Solana rendering)
// or as 128 hex characters.
func ParseSignature(s string) (solana.Signature, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2*SignatureSize {
		if raw, err := hex.DecodeString(s); err == nil {
			var sig solana.Signature
			copy(sig[:], raw)
			return sig, nil
		}
	}
	sig, err := solana.SignatureFromBase58(s)
	if err != nil {
		return solana.Signature{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("signature must be %d bytes in base58 or hex", SignatureSize))
	}
	return sig, nil
}

// ParseIdentity decodes a base58 public key and rejects the zero key.
func ParseIdentity(field, s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeValidation, field+" must be a base58 public key")
	}
	if pk.IsZero() {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeValidation, field+" must not be the zero key")
	}
	return pk, nil
}

// CredentialCommitment binds a credential id to its owner and digest.
//
// Invariants:
//   - CredentialID is non-empty and at most MaxCredentialIDLen bytes
//   - OwnerIdentity is the caller that created it
//   - at most one commitment exists per CredentialID; it is never mutated
type CredentialCommitment struct {
	CredentialID   string           `json:"credential_id"`
	OwnerIdentity  solana.PublicKey `json:"owner_identity"`
	CredentialHash CredentialHash   `json:"credential_hash"`
	Timestamp      int64            `json:"timestamp"`
}

// CredentialAttestation is an institution's signed claim about a credential.
// One exists per (CredentialID, InstitutionIdentity). CredentialHash is stored
// as supplied and is not checked against the commitment.
type CredentialAttestation struct {
	CredentialID        string           `json:"credential_id"`
	CredentialHash      CredentialHash   `json:"credential_hash"`
	InstitutionIdentity solana.PublicKey `json:"institution_identity"`
	Signature           solana.Signature `json:"signature"`
	Timestamp           int64            `json:"timestamp"`
}

// Institution marks an identity as allowed to attest.
type Institution struct {
	Identity      solana.PublicKey `json:"identity"`
	Name          string           `json:"name"`
	IsWhitelisted bool             `json:"is_whitelisted"`
}

func NewCredentialCommitment(credentialID string, owner solana.PublicKey, hash CredentialHash, now time.Time) (*CredentialCommitment, error) {
	if err := ValidateCredentialID(credentialID); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner identity is required")
	}
	return &CredentialCommitment{
		CredentialID:   credentialID,
		OwnerIdentity:  owner,
		CredentialHash: hash,
		Timestamp:      now.Unix(),
	}, nil
}

func NewCredentialAttestation(credentialID string, hash CredentialHash, institution solana.PublicKey, signature solana.Signature, now time.Time) (*CredentialAttestation, error) {
	if err := ValidateCredentialID(credentialID); err != nil {
		return nil, err
	}
	if institution.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution identity is required")
	}
	return &CredentialAttestation{
		CredentialID:        credentialID,
		CredentialHash:      hash,
		InstitutionIdentity: institution,
		Signature:           signature,
		Timestamp:           now.Unix(),
	}, nil
}

// NewInstitution always whitelists: registration is the only gate.
func NewInstitution(identity solana.PublicKey, name string) (*Institution, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution identity is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution name cannot be empty")
	}
	if len(name) > MaxInstitutionNameLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("institution name must be %d bytes or less", MaxInstitutionNameLen))
	}
	if !utf8.ValidString(name) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution name must be valid UTF-8")
	}
	return &Institution{
		Identity:      identity,
		Name:          name,
		IsWhitelisted: true,
	}, nil
}

// CanAttest reports whether the institution passes the whitelist gate.
func (i *Institution) CanAttest() bool {
	return i != nil && i.IsWhitelisted
}

// ValidateCredentialID enforces the credential id rules shared by writes and
// lookups: non-empty, at most MaxCredentialIDLen bytes, valid UTF-8.
// Violations carry CodeInvariantViolation.
func ValidateCredentialID(credentialID string) error {
	if credentialID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential id cannot be empty")
	}
	if len(credentialID) > MaxCredentialIDLen {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("credential id must be %d bytes or less", MaxCredentialIDLen))
	}
	if !utf8.ValidString(credentialID) {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential id must be valid UTF-8")
	}
	return nil
}
