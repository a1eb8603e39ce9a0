package service

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"

	"credentia/internal/ledger"
	"credentia/internal/notary/account"
	"credentia/internal/notary/models"
	"credentia/internal/platform/tracing"
	dErrors "credentia/pkg/domain-errors"
	"credentia/pkg/platform/sentinel"
	"credentia/pkg/requestcontext"
)

const (
	opCreateCommitment      = "create_commitment"
	opCreateAttestation     = "create_attestation"
	opInitializeInstitution = "initialize_institution"
	opRegisterInstitution   = "register_institution"
)

// CreateCredentialCommitment records owner's commitment to credentialID.
// A second commitment for the same id fails with ErrRecordAlreadyExists and
// leaves the first untouched.
func (s *Service) CreateCredentialCommitment(ctx context.Context, owner solana.PublicKey, credentialID string, hash models.CredentialHash) (_ *models.CredentialCommitment, err error) {
	start := time.Now()
	ctx, finish := tracing.TraceOp(ctx, "notary.create_commitment", attribute.String("credential_id", credentialID))
	defer func() {
		s.observe(opCreateCommitment, start, err)
		finish(err)
	}()

	now := requestcontext.Now(ctx)
	commitment, err := models.NewCredentialCommitment(credentialID, owner, hash, now)
	if err != nil {
		return nil, validationError(err)
	}
	derived, err := s.deriver.Commitment(credentialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive commitment address")
	}
	data, err := account.EncodeCommitment(commitment)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode commitment")
	}

	err = s.ledger.CreateIfAbsent(ctx, ledger.Account{
		Address:      derived.Address,
		Kind:         ledger.KindCommitment,
		CredentialID: credentialID,
		Owner:        owner,
		Data:         data,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, createError(err, "credential commitment")
	}

	s.logger.InfoContext(ctx, "credential commitment created",
		"credential_id", credentialID,
		"owner", owner.String(),
		"address", derived.Address.String(),
	)
	s.recordCreated(ledger.KindCommitment)
	return commitment, nil
}

// CreateAttestation records institution's attestation of credentialID. The
// institution must hold a whitelisted institution record; that check runs
// before the duplicate check. The hash is stored as supplied and the
// signature is kept as an opaque blob.
func (s *Service) CreateAttestation(ctx context.Context, institution solana.PublicKey, credentialID string, hash models.CredentialHash, signature solana.Signature) (_ *models.CredentialAttestation, err error) {
	start := time.Now()
	ctx, finish := tracing.TraceOp(ctx, "notary.create_attestation",
		attribute.String("credential_id", credentialID),
		attribute.String("institution", institution.String()),
	)
	defer func() {
		s.observe(opCreateAttestation, start, err)
		finish(err)
	}()

	now := requestcontext.Now(ctx)
	attestation, err := models.NewCredentialAttestation(credentialID, hash, institution, signature, now)
	if err != nil {
		return nil, validationError(err)
	}
	institutionAddr, err := s.deriver.Institution(institution)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive institution address")
	}
	derived, err := s.deriver.Attestation(credentialID, institution)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive attestation address")
	}
	data, err := account.EncodeAttestation(attestation)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode attestation")
	}

	err = s.ledger.Atomically(ctx, func(ctx context.Context) error {
		if err := s.requireWhitelisted(ctx, institutionAddr.Address); err != nil {
			return err
		}
		err := s.ledger.CreateIfAbsent(ctx, ledger.Account{
			Address:      derived.Address,
			Kind:         ledger.KindAttestation,
			CredentialID: credentialID,
			Data:         data,
			CreatedAt:    now,
		})
		if err != nil {
			return createError(err, "attestation")
		}
		return nil
	})
	if err != nil {
		var coded *dErrors.Error
		if !errors.As(err, &coded) {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create attestation")
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "credential attestation created",
		"credential_id", credentialID,
		"institution", institution.String(),
		"address", derived.Address.String(),
	)
	s.recordCreated(ledger.KindAttestation)
	return attestation, nil
}

// requireWhitelisted loads the institution record at addr and fails with
// ErrInstitutionNotWhitelisted when it is missing or not whitelisted.
func (s *Service) requireWhitelisted(ctx context.Context, addr solana.PublicKey) error {
	acct, err := s.ledger.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(models.ErrInstitutionNotWhitelisted, dErrors.CodeForbidden, "institution is not registered")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institution")
	}
	inst, err := account.DecodeInstitution(acct.Data)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode institution")
	}
	if !inst.CanAttest() {
		return dErrors.Wrap(models.ErrInstitutionNotWhitelisted, dErrors.CodeForbidden, "institution is not whitelisted")
	}
	return nil
}

// InitializeInstitution registers caller as a whitelisted institution named
// name. It is rejected when registration is restricted to an authority.
func (s *Service) InitializeInstitution(ctx context.Context, caller solana.PublicKey, name string) (_ *models.Institution, err error) {
	start := time.Now()
	ctx, finish := tracing.TraceOp(ctx, "notary.initialize_institution", attribute.String("institution", caller.String()))
	defer func() {
		s.observe(opInitializeInstitution, start, err)
		finish(err)
	}()

	inst, err := models.NewInstitution(caller, name)
	if err != nil {
		return nil, validationError(err)
	}
	if s.registration == RegistrationAuthority {
		return nil, dErrors.New(dErrors.CodeForbidden, "institution self-registration is disabled")
	}
	if err := s.createInstitution(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// RegisterInstitution lets the configured registration authority create an
// institution record for identity.
func (s *Service) RegisterInstitution(ctx context.Context, caller, identity solana.PublicKey, name string) (_ *models.Institution, err error) {
	start := time.Now()
	ctx, finish := tracing.TraceOp(ctx, "notary.register_institution",
		attribute.String("authority", caller.String()),
		attribute.String("institution", identity.String()),
	)
	defer func() {
		s.observe(opRegisterInstitution, start, err)
		finish(err)
	}()

	inst, err := models.NewInstitution(identity, name)
	if err != nil {
		return nil, validationError(err)
	}
	if s.registration != RegistrationAuthority {
		return nil, dErrors.New(dErrors.CodeForbidden, "authority registration is not enabled")
	}
	if caller != s.authority {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not the registration authority")
	}
	if err := s.createInstitution(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Service) createInstitution(ctx context.Context, inst *models.Institution) error {
	derived, err := s.deriver.Institution(inst.Identity)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive institution address")
	}
	data, err := account.EncodeInstitution(inst)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode institution")
	}
	err = s.ledger.CreateIfAbsent(ctx, ledger.Account{
		Address:   derived.Address,
		Kind:      ledger.KindInstitution,
		Data:      data,
		CreatedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return createError(err, "institution")
	}

	s.logger.InfoContext(ctx, "institution registered",
		"institution", inst.Identity.String(),
		"name", inst.Name,
		"address", derived.Address.String(),
	)
	s.recordCreated(ledger.KindInstitution)
	return nil
}

// createError maps a ledger create failure for the named record.
func createError(err error, record string) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.Wrap(models.ErrRecordAlreadyExists, dErrors.CodeConflict, record+" already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create "+record)
}

func (s *Service) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(operation, start)
	s.fail(operation, err)
}
