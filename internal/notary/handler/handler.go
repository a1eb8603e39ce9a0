package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"credentia/internal/notary/models"
	"credentia/internal/notary/service"
	"credentia/internal/platform/middleware"
	dErrors "credentia/pkg/domain-errors"
	"credentia/pkg/platform/httputil"
	"credentia/pkg/requestcontext"
)

// Service defines the notary operations exposed over HTTP.
type Service interface {
	CreateCredentialCommitment(ctx context.Context, owner solana.PublicKey, credentialID string, hash models.CredentialHash) (*models.CredentialCommitment, error)
	CreateAttestation(ctx context.Context, institution solana.PublicKey, credentialID string, hash models.CredentialHash, signature solana.Signature) (*models.CredentialAttestation, error)
	InitializeInstitution(ctx context.Context, caller solana.PublicKey, name string) (*models.Institution, error)
	RegisterInstitution(ctx context.Context, caller, identity solana.PublicKey, name string) (*models.Institution, error)
	GetCommitment(ctx context.Context, credentialID string) (*models.CredentialCommitment, error)
	GetInstitution(ctx context.Context, identity solana.PublicKey) (*models.Institution, error)
	GetAttestation(ctx context.Context, credentialID string, institution solana.PublicKey) (*models.CredentialAttestation, error)
	ListAttestations(ctx context.Context, credentialID string) ([]*models.CredentialAttestation, error)
	ListCommitmentsByOwner(ctx context.Context, owner solana.PublicKey) ([]*models.CredentialCommitment, error)
	VerifyCredential(ctx context.Context, credentialID string) (*models.VerificationResult, error)
	DeriveAddresses(credentialID string, institution solana.PublicKey) (*service.DerivedAddresses, error)
}

// Handler serves the notary HTTP API.
type Handler struct {
	notary  Service
	logger  *slog.Logger
	maxSkew time.Duration
}

// New creates a notary Handler. maxSkew bounds how far a request signature
// timestamp may drift from the server clock.
func New(notary Service, logger *slog.Logger, maxSkew time.Duration) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{notary: notary, logger: logger, maxSkew: maxSkew}
}

// Register registers the notary routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/commitments/{credentialID}", h.handleGetCommitment)
		r.Get("/credentials/{credentialID}/attestations", h.handleListAttestations)
		r.Get("/credentials/{credentialID}/attestations/{institution}", h.handleGetAttestation)
		r.Get("/credentials/{credentialID}/verification", h.handleVerifyCredential)
		r.Get("/institutions/{identity}", h.handleGetInstitution)
		r.Get("/owners/{identity}/commitments", h.handleListOwnerCommitments)
		r.Get("/addresses", h.handleDeriveAddresses)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSigner(h.maxSkew, h.logger))
			r.Post("/commitments", h.handleCreateCommitment)
			r.Post("/attestations", h.handleCreateAttestation)
			r.Post("/institutions", h.handleInitializeInstitution)
			r.Post("/admin/institutions", h.handleRegisterInstitution)
		})
	})
}

func (h *Handler) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateCommitmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid create commitment request", err)
		return
	}
	in, err := req.parse()
	if err != nil {
		h.writeError(w, r, "invalid create commitment request", err)
		return
	}

	commitment, err := h.notary.CreateCredentialCommitment(ctx, caller, in.credentialID, in.hash)
	if err != nil {
		h.writeError(w, r, "failed to create commitment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, commitment)
}

func (h *Handler) handleCreateAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateAttestationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid create attestation request", err)
		return
	}
	in, err := req.parse()
	if err != nil {
		h.writeError(w, r, "invalid create attestation request", err)
		return
	}

	attestation, err := h.notary.CreateAttestation(ctx, caller, in.credentialID, in.hash, in.signature)
	if err != nil {
		h.writeError(w, r, "failed to create attestation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, attestation)
}

func (h *Handler) handleInitializeInstitution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req InitializeInstitutionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid initialize institution request", err)
		return
	}

	inst, err := h.notary.InitializeInstitution(ctx, caller, req.Name)
	if err != nil {
		h.writeError(w, r, "failed to initialize institution", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inst)
}

func (h *Handler) handleRegisterInstitution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req RegisterInstitutionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid register institution request", err)
		return
	}
	identity, err := req.parse()
	if err != nil {
		h.writeError(w, r, "invalid register institution request", err)
		return
	}

	inst, err := h.notary.RegisterInstitution(ctx, caller, identity, req.Name)
	if err != nil {
		h.writeError(w, r, "failed to register institution", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inst)
}

func (h *Handler) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := h.pathParam(w, r, "credentialID")
	if !ok {
		return
	}
	commitment, err := h.notary.GetCommitment(r.Context(), credentialID)
	if err != nil {
		h.writeError(w, r, "failed to get commitment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, commitment)
}

func (h *Handler) handleListAttestations(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := h.pathParam(w, r, "credentialID")
	if !ok {
		return
	}
	attestations, err := h.notary.ListAttestations(r.Context(), credentialID)
	if err != nil {
		h.writeError(w, r, "failed to list attestations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AttestationListResponse{
		CredentialID: credentialID,
		Attestations: attestations,
	})
}

func (h *Handler) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := h.pathParam(w, r, "credentialID")
	if !ok {
		return
	}
	institution, err := models.ParseIdentity("institution", chi.URLParam(r, "institution"))
	if err != nil {
		h.writeError(w, r, "invalid institution", err)
		return
	}
	attestation, err := h.notary.GetAttestation(r.Context(), credentialID, institution)
	if err != nil {
		h.writeError(w, r, "failed to get attestation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attestation)
}

func (h *Handler) handleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := h.pathParam(w, r, "credentialID")
	if !ok {
		return
	}
	result, err := h.notary.VerifyCredential(r.Context(), credentialID)
	if err != nil {
		h.writeError(w, r, "failed to verify credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetInstitution(w http.ResponseWriter, r *http.Request) {
	identity, err := models.ParseIdentity("identity", chi.URLParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, "invalid institution identity", err)
		return
	}
	inst, err := h.notary.GetInstitution(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, "failed to get institution", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleListOwnerCommitments(w http.ResponseWriter, r *http.Request) {
	owner, err := models.ParseIdentity("identity", chi.URLParam(r, "identity"))
	if err != nil {
		h.writeError(w, r, "invalid owner identity", err)
		return
	}
	commitments, err := h.notary.ListCommitmentsByOwner(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, "failed to list commitments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CommitmentListResponse{
		Owner:       owner,
		Commitments: commitments,
	})
}

func (h *Handler) handleDeriveAddresses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var institution solana.PublicKey
	if raw := q.Get("institution"); raw != "" {
		var err error
		institution, err = models.ParseIdentity("institution", raw)
		if err != nil {
			h.writeError(w, r, "invalid institution", err)
			return
		}
	}
	addrs, err := h.notary.DeriveAddresses(q.Get("credential_id"), institution)
	if err != nil {
		h.writeError(w, r, "failed to derive addresses", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, addrs)
}

// caller returns the verified signer. The signer middleware guarantees one is
// present on mutating routes.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	caller, ok := requestcontext.Caller(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "caller missing from context despite signer middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "request is not signed"))
		return solana.PublicKey{}, false
	}
	return caller, true
}

// pathParam returns the decoded URL parameter. chi matches against RawPath
// when the request carries escaped separators, so the value may need decoding.
func (h *Handler) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, true
	}
	value, err := url.PathUnescape(value)
	if err != nil {
		h.writeError(w, r, "invalid path parameter", dErrors.New(dErrors.CodeBadRequest, "invalid "+name))
		return "", false
	}
	return value, true
}

// writeError logs at warn for caller mistakes and at error for internal
// failures, then writes the error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
