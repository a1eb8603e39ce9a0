package service

import (
	"context"
	"errors"
	"sort"

	"github.com/gagliardetto/solana-go"

	"credentia/internal/ledger"
	"credentia/internal/notary/account"
	"credentia/internal/notary/address"
	"credentia/internal/notary/models"
	dErrors "credentia/pkg/domain-errors"
	"credentia/pkg/platform/sentinel"
)

// DerivedAddresses lists the record addresses for a credential id and/or an
// institution identity under the configured program.
type DerivedAddresses struct {
	ProgramID   solana.PublicKey `json:"program_id"`
	Commitment  *address.Derived `json:"commitment,omitempty"`
	Attestation *address.Derived `json:"attestation,omitempty"`
	Institution *address.Derived `json:"institution,omitempty"`
}

// validateCredentialID applies the model rules to a lookup key.
func validateCredentialID(credentialID string) error {
	return validationError(models.ValidateCredentialID(credentialID))
}

func (s *Service) load(ctx context.Context, addr solana.PublicKey, record string) (ledger.Account, error) {
	acct, err := s.ledger.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ledger.Account{}, dErrors.New(dErrors.CodeNotFound, record+" not found")
		}
		return ledger.Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+record)
	}
	return acct, nil
}

// GetCommitment returns the commitment recorded for credentialID.
func (s *Service) GetCommitment(ctx context.Context, credentialID string) (*models.CredentialCommitment, error) {
	if err := validateCredentialID(credentialID); err != nil {
		return nil, err
	}
	derived, err := s.deriver.Commitment(credentialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive commitment address")
	}
	acct, err := s.load(ctx, derived.Address, "credential commitment")
	if err != nil {
		return nil, err
	}
	commitment, err := account.DecodeCommitment(acct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode commitment")
	}
	return commitment, nil
}

// GetInstitution returns the institution record of identity.
func (s *Service) GetInstitution(ctx context.Context, identity solana.PublicKey) (*models.Institution, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "institution identity is required")
	}
	derived, err := s.deriver.Institution(identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive institution address")
	}
	acct, err := s.load(ctx, derived.Address, "institution")
	if err != nil {
		return nil, err
	}
	inst, err := account.DecodeInstitution(acct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode institution")
	}
	return inst, nil
}

// GetAttestation returns institution's attestation of credentialID.
func (s *Service) GetAttestation(ctx context.Context, credentialID string, institution solana.PublicKey) (*models.CredentialAttestation, error) {
	if err := validateCredentialID(credentialID); err != nil {
		return nil, err
	}
	if institution.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "institution identity is required")
	}
	derived, err := s.deriver.Attestation(credentialID, institution)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive attestation address")
	}
	acct, err := s.load(ctx, derived.Address, "attestation")
	if err != nil {
		return nil, err
	}
	attestation, err := account.DecodeAttestation(acct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode attestation")
	}
	return attestation, nil
}

// ListAttestations returns every attestation of credentialID ordered by
// timestamp, then institution.
func (s *Service) ListAttestations(ctx context.Context, credentialID string) ([]*models.CredentialAttestation, error) {
	if err := validateCredentialID(credentialID); err != nil {
		return nil, err
	}
	accts, err := s.ledger.ListByCredential(ctx, ledger.KindAttestation, credentialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attestations")
	}
	out := make([]*models.CredentialAttestation, 0, len(accts))
	for _, acct := range accts {
		attestation, err := account.DecodeAttestation(acct.Data)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode attestation")
		}
		out = append(out, attestation)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].InstitutionIdentity.String() < out[j].InstitutionIdentity.String()
	})
	return out, nil
}

// ListCommitmentsByOwner returns the commitments owner created, newest
// first.
func (s *Service) ListCommitmentsByOwner(ctx context.Context, owner solana.PublicKey) ([]*models.CredentialCommitment, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner identity is required")
	}
	accts, err := s.ledger.ListByOwner(ctx, ledger.KindCommitment, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list commitments")
	}
	out := make([]*models.CredentialCommitment, 0, len(accts))
	for _, acct := range accts {
		commitment, err := account.DecodeCommitment(acct.Data)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode commitment")
		}
		out = append(out, commitment)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].CredentialID < out[j].CredentialID
	})
	return out, nil
}

// VerifyCredential reports whether any whitelisted institution has attested
// to the committed hash of credentialID. It only reads.
func (s *Service) VerifyCredential(ctx context.Context, credentialID string) (*models.VerificationResult, error) {
	result := &models.VerificationResult{
		CredentialID: credentialID,
		Attestations: []models.AttestationCheck{},
	}

	commitment, err := s.GetCommitment(ctx, credentialID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			result.Status = models.StatusNoAttestation
			result.Message = "no commitment is recorded for this credential"
			return result, nil
		}
		return nil, err
	}
	result.Commitment = commitment

	attestations, err := s.ListAttestations(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if len(attestations) == 0 {
		result.Status = models.StatusNoAttestation
		result.Message = "credential has no attestations"
		return result, nil
	}

	institutions, err := s.institutionsByIdentity(ctx, attestations)
	if err != nil {
		return nil, err
	}

	result.Status = models.StatusNotVerified
	result.Message = "no whitelisted institution attested to the committed hash"
	for _, attestation := range attestations {
		check := models.AttestationCheck{
			Attestation: *attestation,
			HashMatches: attestation.CredentialHash == commitment.CredentialHash,
		}
		if inst, ok := institutions[attestation.InstitutionIdentity]; ok {
			check.InstitutionName = inst.Name
			check.Whitelisted = inst.CanAttest()
		}
		if check.HashMatches && check.Whitelisted {
			result.Status = models.StatusVerified
			result.Message = "credential hash attested by a whitelisted institution"
		}
		result.Attestations = append(result.Attestations, check)
	}
	return result, nil
}

func (s *Service) institutionsByIdentity(ctx context.Context, attestations []*models.CredentialAttestation) (map[solana.PublicKey]*models.Institution, error) {
	addrs := make([]solana.PublicKey, 0, len(attestations))
	for _, attestation := range attestations {
		derived, err := s.deriver.Institution(attestation.InstitutionIdentity)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive institution address")
		}
		addrs = append(addrs, derived.Address)
	}
	accts, err := s.ledger.GetMany(ctx, addrs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institutions")
	}
	out := make(map[solana.PublicKey]*models.Institution, len(accts))
	for _, acct := range accts {
		inst, err := account.DecodeInstitution(acct.Data)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode institution")
		}
		out[inst.Identity] = inst
	}
	return out, nil
}

// DeriveAddresses computes record addresses without touching the ledger.
// At least one of credentialID and institution must be set.
func (s *Service) DeriveAddresses(credentialID string, institution solana.PublicKey) (*DerivedAddresses, error) {
	if credentialID == "" && institution.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "credential_id or institution is required")
	}
	out := &DerivedAddresses{ProgramID: s.deriver.ProgramID()}
	if credentialID != "" {
		if err := validateCredentialID(credentialID); err != nil {
			return nil, err
		}
		commitment, err := s.deriver.Commitment(credentialID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive commitment address")
		}
		out.Commitment = &commitment
	}
	if !institution.IsZero() {
		inst, err := s.deriver.Institution(institution)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive institution address")
		}
		out.Institution = &inst
	}
	if credentialID != "" && !institution.IsZero() {
		attestation, err := s.deriver.Attestation(credentialID, institution)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive attestation address")
		}
		out.Attestation = &attestation
	}
	return out, nil
}
