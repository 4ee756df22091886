package kms

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCA_SignCSR(t *testing.T) {
	ca, err := NewLocalCA("test CA")
	require.NoError(t, err)

	codec := cryptoutils.NewCodec(rand.Reader)
	key, err := codec.GenerateKeypair()
	require.NoError(t, err)
	csr, err := codec.BuildCSR(key, "node-1")
	require.NoError(t, err)

	cert, err := ca.SignCSR(csr)
	require.NoError(t, err)

	caCert, err := ca.CACertificate()
	require.NoError(t, err)
	require.NoError(t, caCert.Validate())

	assert.NoError(t, caCert.VerifyCertificate(cert, cryptoutils.DefaultRefreshThreshold))

	leaf, err := cert.GetX509Cert()
	require.NoError(t, err)
	assert.Equal(t, "node-1", leaf.Subject.CommonName)
	assert.Equal(t, []string{"INAETICS"}, leaf.Subject.Organization)
}

func TestLocalCA_RejectsGarbage(t *testing.T) {
	ca, err := NewLocalCA("test CA")
	require.NoError(t, err)

	_, err = ca.SignCSR(cryptoutils.TLSCSR("not a csr"))
	assert.Error(t, err)
}

func TestLocalCA_ShortValidity(t *testing.T) {
	ca, err := NewLocalCA("test CA")
	require.NoError(t, err)
	ca.WithLeafValidity(10 * time.Second)

	codec := cryptoutils.NewCodec(rand.Reader)
	key, err := codec.GenerateKeypair()
	require.NoError(t, err)
	csr, err := codec.BuildCSR(key, "node-1")
	require.NoError(t, err)

	cert, err := ca.SignCSR(csr)
	require.NoError(t, err)

	caCert, err := ca.CACertificate()
	require.NoError(t, err)
	assert.ErrorIs(t, caCert.VerifyCertificate(cert, cryptoutils.DefaultRefreshThreshold), cryptoutils.ErrVerificationFailed)
}

func TestNewLocalCAFromSeed_Deterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	a, err := NewLocalCAFromSeed(seed, "CA")
	require.NoError(t, err)
	b, err := NewLocalCAFromSeed(seed, "CA")
	require.NoError(t, err)

	assert.True(t, a.key.Equal(b.key))

	_, err = NewLocalCAFromSeed([]byte("short"), "CA")
	assert.Error(t, err)
}
