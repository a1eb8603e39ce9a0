package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger stores return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about accounts, not validation failures:
// - ErrNotFound: no account at the address
// - ErrAlreadyUsed: the address is already occupied (create-once violated)
// - ErrInvalidState: stored bytes do not decode as the expected account type
// - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors (bad input, oversized fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
