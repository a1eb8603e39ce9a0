package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaller(t *testing.T) {
	t.Run("absent caller", func(t *testing.T) {
		_, ok := Caller(context.Background())
		assert.False(t, ok)
	})

	t.Run("zero key is treated as absent", func(t *testing.T) {
		_, ok := Caller(WithCaller(context.Background(), solana.PublicKey{}))
		assert.False(t, ok)
	})

	t.Run("round trips a key", func(t *testing.T) {
		priv, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)

		got, ok := Caller(WithCaller(context.Background(), priv.PublicKey()))
		require.True(t, ok)
		assert.Equal(t, priv.PublicKey(), got)
	})
}

func TestNowPrefersInjectedTime(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
}
