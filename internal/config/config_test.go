package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, HashSize32, c.HashSize)
}

func TestValidateRejectsBadMinBlockSize(t *testing.T) {
	c := Default()
	c.MinBlockSize = 0
	err := c.Validate()
	require.Error(t, err)
	require.Equal(t, perrors.KindUsage, perrors.KindOf(err))
}

func TestValidateRejectsBadHashSize(t *testing.T) {
	c := Default()
	c.HashSize = 16
	require.Error(t, c.Validate())
}

func TestValidateRejectsNegativeWorkers(t *testing.T) {
	c := Default()
	c.Workers = -1
	require.Error(t, c.Validate())
}

func TestHasherOptionsCount(t *testing.T) {
	c := Default()
	require.Len(t, c.HasherOptions(), 2)
}
