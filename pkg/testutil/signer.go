package testutil

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"credentia/internal/platform/middleware"
)

// Signer is a throwaway ed25519 identity that signs test requests.
type Signer struct {
	Key solana.PrivateKey
}

// NewSigner generates a fresh identity.
func NewSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &Signer{Key: key}
}

// PublicKey returns the signer identity.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.Key.PublicKey()
}

// Sign sets the signature headers on req for timestamp at.
func (s *Signer) Sign(t *testing.T, req *http.Request, at time.Time) *http.Request {
	t.Helper()
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		require.NoError(t, err)
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	ts := at.Unix()
	sig, err := s.Key.Sign(middleware.SigningMessage(req.Method, req.URL.Path, ts, body))
	require.NoError(t, err)

	req.Header.Set(middleware.HeaderSigner, s.PublicKey().String())
	req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(middleware.HeaderSignature, sig.String())
	return req
}
