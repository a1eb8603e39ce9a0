package address

import (
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return priv.PublicKey()
}

func TestCommitmentMatchesSingleSeedDerivation(t *testing.T) {
	d := New(DefaultProgramID)

	got, err := d.Commitment("deg-2024-001")
	require.NoError(t, err)

	want, bump, err := solana.FindProgramAddress([][]byte{[]byte("credential"), []byte("deg-2024-001")}, DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got.Address)
	assert.Equal(t, bump, got.Bump)
}

func TestDerivationIsDeterministic(t *testing.T) {
	d := New(DefaultProgramID)
	inst := newKey(t)

	a1, err := d.Attestation("deg-2024-001", inst)
	require.NoError(t, err)
	a2, err := d.Attestation("deg-2024-001", inst)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	i1, err := d.Institution(inst)
	require.NoError(t, err)
	i2, err := d.Institution(inst)
	require.NoError(t, err)
	assert.Equal(t, i1, i2)
}

func TestAddressesSeparateByKey(t *testing.T) {
	d := New(DefaultProgramID)
	instA, instB := newKey(t), newKey(t)

	a, err := d.Attestation("deg-2024-001", instA)
	require.NoError(t, err)
	b, err := d.Attestation("deg-2024-001", instB)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address, "different institutions must not share an attestation address")

	c1, err := d.Commitment("deg-2024-001")
	require.NoError(t, err)
	c2, err := d.Commitment("deg-2024-002")
	require.NoError(t, err)
	assert.NotEqual(t, c1.Address, c2.Address)
}

func TestLongCredentialIDs(t *testing.T) {
	d := New(DefaultProgramID)
	inst := newKey(t)
	id := strings.Repeat("c", 256)

	_, err := d.Commitment(id)
	require.NoError(t, err)
	_, err = d.Attestation(id, inst)
	require.NoError(t, err)
}

func TestProgramIDChangesAddresses(t *testing.T) {
	other := newKey(t)
	a, err := New(DefaultProgramID).Commitment("deg-2024-001")
	require.NoError(t, err)
	b, err := New(other).Commitment("deg-2024-001")
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address)
	assert.Equal(t, DefaultProgramID, New(solana.PublicKey{}).ProgramID())
}

func TestSplitSeed(t *testing.T) {
	assert.Len(t, splitSeed(make([]byte, 32)), 1)
	assert.Len(t, splitSeed(make([]byte, 33)), 2)
	chunks := splitSeed(make([]byte, 256))
	assert.Len(t, chunks, 8)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxSeedLen)
	}
}
