package replicaconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryOfAndQuorum(t *testing.T) {
	cfg, err := New([]string{"r0:9000", "r1:9000", "r2:9000"})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.N())
	assert.Equal(t, 2, cfg.Quorum())
	assert.Equal(t, uint64(0), cfg.PrimaryOf(0))
	assert.Equal(t, uint64(1), cfg.PrimaryOf(1))
	assert.Equal(t, uint64(2), cfg.PrimaryOf(2))
	assert.Equal(t, uint64(0), cfg.PrimaryOf(3))
}

func TestOthersExcludesSelf(t *testing.T) {
	cfg, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint64{0, 2}, cfg.Others(1))
}

func TestAddressOutOfRange(t *testing.T) {
	cfg, err := New([]string{"a", "b"})
	require.NoError(t, err)

	_, err = cfg.Address(5)
	require.Error(t, err)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
