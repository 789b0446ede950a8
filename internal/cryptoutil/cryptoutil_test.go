package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	sealed, err := Seal(key, []byte("checkpoint state"))
	require.NoError(t, err)

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "checkpoint state", string(opened))
}

func TestOpen_WrongKeyFails(t *testing.T) {
	key := make([]byte, KeySize)
	sealed, err := Seal(key, []byte("secret"))
	require.NoError(t, err)

	wrongKey := make([]byte, KeySize)
	wrongKey[0] = 1
	_, err = Open(wrongKey, sealed)
	assert.Error(t, err)
}
