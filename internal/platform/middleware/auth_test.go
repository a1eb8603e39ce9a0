package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credentia/internal/platform/middleware"
	"credentia/pkg/requestcontext"
	"credentia/pkg/testutil"
)

var now = time.Unix(1_717_000_000, 0)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoCaller responds with the caller identity and the body it received.
func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requestcontext.Caller(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Caller", caller.String())
		_, _ = w.Write(body)
	})
}

func serve(req *http.Request) *httptest.ResponseRecorder {
	h := middleware.RequireSigner(time.Minute, discardLogger())(echoCaller())
	return testutil.DoRequest(h, testutil.WithTime(req, now))
}

func TestRequireSignerAcceptsValidSignature(t *testing.T) {
	signer := testutil.NewSigner(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/commitments", strings.NewReader(`{"credential_id":"deg-1"}`))
	signer.Sign(t, req, now)

	rr := serve(req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, signer.PublicKey().String(), rr.Header().Get("X-Caller"))
	assert.Equal(t, `{"credential_id":"deg-1"}`, rr.Body.String(), "body must be readable after verification")
}

func TestRequireSignerRejects(t *testing.T) {
	signer := testutil.NewSigner(t)

	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{
			name: "missing headers",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{}`))
			},
		},
		{
			name: "tampered body",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{"name":"A"}`))
				signer.Sign(t, req, now)
				req.Body = io.NopCloser(strings.NewReader(`{"name":"B"}`))
				return req
			},
		},
		{
			name: "different path",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{}`))
				signer.Sign(t, req, now)
				req.URL.Path = "/v1/admin/institutions"
				return req
			},
		},
		{
			name: "stale timestamp",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{}`))
				return signer.Sign(t, req, now.Add(-2*time.Minute))
			},
		},
		{
			name: "future timestamp",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{}`))
				return signer.Sign(t, req, now.Add(2*time.Minute))
			},
		},
		{
			name: "signer does not match signature",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{}`))
				signer.Sign(t, req, now)
				req.Header.Set(middleware.HeaderSigner, solana.NewWallet().PublicKey().String())
				return req
			},
		},
		{
			name: "malformed signature",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/institutions", strings.NewReader(`{}`))
				signer.Sign(t, req, now)
				req.Header.Set(middleware.HeaderSignature, "not-base58-0OIl")
				return req
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(tt.build())
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func TestSigningMessageLayout(t *testing.T) {
	msg := middleware.SigningMessage("POST", "/v1/commitments", 42, nil)
	assert.Equal(t,
		"POST\n/v1/commitments\n42\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		string(msg))
}
