package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDRBG_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, drbgSeedSize)

	a, err := NewDRBG(bytes.NewReader(seed), "personal")
	require.NoError(t, err)
	b, err := NewDRBG(bytes.NewReader(seed), "personal")
	require.NoError(t, err)
	c, err := NewDRBG(bytes.NewReader(seed), "other")
	require.NoError(t, err)

	outA := make([]byte, 64)
	outB := make([]byte, 64)
	outC := make([]byte, 64)
	_, _ = a.Read(outA)
	_, _ = b.Read(outB)
	_, _ = c.Read(outC)

	assert.Equal(t, outA, outB)
	assert.NotEqual(t, outA, outC)
}

func TestDRBG_Reseed(t *testing.T) {
	d, err := NewDRBG(rand.Reader, "reseed")
	require.NoError(t, err)
	d.reseedInterval = 32

	buf := make([]byte, 24)
	_, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), d.produced)

	_, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), d.produced, "second read must start from a fresh seed")
}

func TestDRBG_EntropyExhausted(t *testing.T) {
	_, err := NewDRBG(bytes.NewReader([]byte{1, 2, 3}), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeygen)
}
