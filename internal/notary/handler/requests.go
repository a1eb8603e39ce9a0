package handler

import (
	"strings"

	"github.com/gagliardetto/solana-go"

	"credentia/internal/notary/models"
	dErrors "credentia/pkg/domain-errors"
)

type CreateCommitmentRequest struct {
	CredentialID   string `json:"credential_id"`
	CredentialHash string `json:"credential_hash"`
}

type commitmentInput struct {
	credentialID string
	hash         models.CredentialHash
}

func (r *CreateCommitmentRequest) parse() (commitmentInput, error) {
	if strings.TrimSpace(r.CredentialHash) == "" {
		return commitmentInput{}, dErrors.New(dErrors.CodeValidation, "credential_hash is required")
	}
	hash, err := models.ParseCredentialHash(r.CredentialHash)
	if err != nil {
		return commitmentInput{}, err
	}
	return commitmentInput{credentialID: r.CredentialID, hash: hash}, nil
}

type CreateAttestationRequest struct {
	CredentialID   string `json:"credential_id"`
	CredentialHash string `json:"credential_hash"`
	Signature      string `json:"signature"`
}

type attestationInput struct {
	credentialID string
	hash         models.CredentialHash
	signature    solana.Signature
}

func (r *CreateAttestationRequest) parse() (attestationInput, error) {
	if strings.TrimSpace(r.CredentialHash) == "" {
		return attestationInput{}, dErrors.New(dErrors.CodeValidation, "credential_hash is required")
	}
	if strings.TrimSpace(r.Signature) == "" {
		return attestationInput{}, dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	hash, err := models.ParseCredentialHash(r.CredentialHash)
	if err != nil {
		return attestationInput{}, err
	}
	sig, err := models.ParseSignature(r.Signature)
	if err != nil {
		return attestationInput{}, err
	}
	return attestationInput{credentialID: r.CredentialID, hash: hash, signature: sig}, nil
}

type InitializeInstitutionRequest struct {
	Name string `json:"name"`
}

type RegisterInstitutionRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

func (r *RegisterInstitutionRequest) parse() (solana.PublicKey, error) {
	return models.ParseIdentity("identity", r.Identity)
}

// AttestationListResponse wraps a credential's attestations.
type AttestationListResponse struct {
	CredentialID string                          `json:"credential_id"`
	Attestations []*models.CredentialAttestation `json:"attestations"`
}

// CommitmentListResponse wraps an owner's commitments, newest first.
type CommitmentListResponse struct {
	Owner       solana.PublicKey               `json:"owner"`
	Commitments []*models.CredentialCommitment `json:"commitments"`
}
