package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	dErrors "credentia/pkg/domain-errors"
	"credentia/pkg/platform/httputil"
	"credentia/pkg/requestcontext"
)

// Signature headers carried by mutating requests.
const (
	HeaderSigner    = "X-Signer"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

const maxSignedBodyBytes = 64 << 10

// SigningMessage is the byte string a caller signs:
// METHOD \n PATH \n TIMESTAMP \n hex(sha256(body)).
func SigningMessage(method, path string, timestamp int64, body []byte) []byte {
	digest := sha256.Sum256(body)
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.WriteString(hex.EncodeToString(digest[:]))
	return buf.Bytes()
}

// RequireSigner verifies the request's ed25519 signature headers and stores
// the signer as the request caller. Timestamps further than maxSkew from the
// request time are rejected.
func RequireSigner(maxSkew time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			signer, err := verifyRequest(r, maxSkew)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized request - signature rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, err)
				return
			}
			ctx = requestcontext.WithCaller(ctx, signer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyRequest(r *http.Request, maxSkew time.Duration) (solana.PublicKey, error) {
	signerHeader := r.Header.Get(HeaderSigner)
	tsHeader := r.Header.Get(HeaderTimestamp)
	sigHeader := r.Header.Get(HeaderSignature)
	if signerHeader == "" || tsHeader == "" || sigHeader == "" {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeUnauthorized, "missing signature headers")
	}

	signer, err := solana.PublicKeyFromBase58(signerHeader)
	if err != nil || signer.IsZero() {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeUnauthorized, "invalid signer")
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeUnauthorized, "invalid timestamp")
	}
	skew := requestcontext.Now(r.Context()).Sub(time.Unix(ts, 0))
	if skew > maxSkew || skew < -maxSkew {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeUnauthorized, "timestamp outside allowed window")
	}
	sig, err := solana.SignatureFromBase58(sigHeader)
	if err != nil {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeUnauthorized, "invalid signature encoding")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes+1))
	if err != nil {
		return solana.PublicKey{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body")
	}
	if len(body) > maxSignedBodyBytes {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeBadRequest, "request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !sig.Verify(signer, SigningMessage(r.Method, r.URL.Path, ts, body)) {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeUnauthorized, "signature does not match signer")
	}
	return signer, nil
}
