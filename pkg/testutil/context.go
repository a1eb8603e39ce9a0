package testutil

import (
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"credentia/pkg/requestcontext"
)

// WithCaller marks the request as signed by caller, simulating what the
// signer middleware does for verified requests.
func WithCaller(req *http.Request, caller solana.PublicKey) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
