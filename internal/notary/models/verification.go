package models

// VerificationStatus summarises what the ledger can say about a credential.
type VerificationStatus string

const (
	StatusVerified      VerificationStatus = "VERIFIED"
	StatusNoAttestation VerificationStatus = "NO_ATTESTATION"
	StatusNotVerified   VerificationStatus = "NOT_VERIFIED"
)

// AttestationCheck is one attestation evaluated against the commitment.
type AttestationCheck struct {
	Attestation     CredentialAttestation `json:"attestation"`
	InstitutionName string                `json:"institution_name,omitempty"`
	Whitelisted     bool                  `json:"whitelisted"`
	HashMatches     bool                  `json:"hash_matches"`
}

// VerificationResult is read-time reporting; it never gates writes.
type VerificationResult struct {
	CredentialID string                `json:"credential_id"`
	Status       VerificationStatus    `json:"status"`
	Message      string                `json:"message"`
	Commitment   *CredentialCommitment `json:"commitment,omitempty"`
	Attestations []AttestationCheck    `json:"attestations"`
}
