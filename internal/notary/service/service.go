package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"credentia/internal/ledger"
	"credentia/internal/notary/address"
	"credentia/internal/notary/metrics"
	"credentia/internal/notary/models"
	dErrors "credentia/pkg/domain-errors"
)

// Ledger is the record store the registrars write to. Implementations must
// make CreateIfAbsent atomic per address.
type Ledger interface {
	CreateIfAbsent(ctx context.Context, acct ledger.Account) error
	Get(ctx context.Context, addr solana.PublicKey) (ledger.Account, error)
	GetMany(ctx context.Context, addrs []solana.PublicKey) ([]ledger.Account, error)
	ListByCredential(ctx context.Context, kind ledger.Kind, credentialID string) ([]ledger.Account, error)
	ListByOwner(ctx context.Context, kind ledger.Kind, owner solana.PublicKey) ([]ledger.Account, error)
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}

// RegistrationMode controls who may create institution records.
type RegistrationMode string

const (
	// RegistrationOpen lets any identity register itself.
	RegistrationOpen RegistrationMode = "open"
	// RegistrationAuthority lets only the configured authority register
	// institutions, on their behalf.
	RegistrationAuthority RegistrationMode = "authority"
)

// Service implements the commitment registrar, the attestation registrar
// and the institution registry, plus read-side lookups over their records.
type Service struct {
	ledger       Ledger
	deriver      *address.Deriver
	logger       *slog.Logger
	metrics      *metrics.Metrics
	registration RegistrationMode
	authority    solana.PublicKey
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithDeriver(d *address.Deriver) Option {
	return func(s *Service) {
		s.deriver = d
	}
}

// WithRegistrationAuthority restricts institution registration to authority.
func WithRegistrationAuthority(authority solana.PublicKey) Option {
	return func(s *Service) {
		s.registration = RegistrationAuthority
		s.authority = authority
	}
}

// New constructs a Service.
func New(l Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:       l,
		deriver:      address.New(address.DefaultProgramID),
		logger:       slog.New(slog.DiscardHandler),
		registration: RegistrationOpen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registration reports the configured institution registration mode.
func (s *Service) Registration() RegistrationMode {
	return s.registration
}

// validationError converts constructor invariant violations into input
// validation errors for callers.
func validationError(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}

func (s *Service) recordCreated(kind ledger.Kind) {
	if s.metrics != nil {
		s.metrics.IncrementRecordCreated(string(kind))
	}
}

// fail counts a rejected operation under the code carried by err.
func (s *Service) fail(operation string, err error) {
	if s.metrics == nil || err == nil {
		return
	}
	reason := string(dErrors.CodeOf(err))
	switch {
	case errors.Is(err, models.ErrRecordAlreadyExists):
		reason = "already_exists"
	case errors.Is(err, models.ErrInstitutionNotWhitelisted):
		reason = "not_whitelisted"
	}
	s.metrics.IncrementFailure(operation, reason)
}
