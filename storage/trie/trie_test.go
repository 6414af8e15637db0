package trie

import (
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"chainsim/storage"
)

func TestRootOfEmptyStore(t *testing.T) {
	root, err := Root(storage.NewStore())
	require.NoError(t, err)
	require.Equal(t, gethtypes.EmptyRootHash, root)
}

func TestRootIsOrderIndependent(t *testing.T) {
	a := storage.NewStore()
	require.NoError(t, a.Set([]byte("bank/supply/ucoin"), []byte{1}))
	require.NoError(t, a.Set([]byte("bank/supply/ucoinx"), []byte{2}))

	b := storage.NewStore()
	require.NoError(t, b.Set([]byte("bank/supply/ucoinx"), []byte{2}))
	require.NoError(t, b.Set([]byte("bank/supply/ucoin"), []byte{1}))

	rootA, err := Root(a)
	require.NoError(t, err)
	rootB, err := Root(b)
	require.NoError(t, err)
	require.Equal(t, rootA, rootB)
	require.NotEqual(t, gethtypes.EmptyRootHash, rootA)
}

func TestRootTracksRollback(t *testing.T) {
	s := storage.NewStore()
	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	before, err := Root(s)
	require.NoError(t, err)

	depth := s.Begin()
	require.NoError(t, s.Set([]byte("k"), []byte("changed")))
	during, err := Root(s)
	require.NoError(t, err)
	require.NotEqual(t, before, during)

	require.NoError(t, s.Rollback(depth))
	after, err := Root(s)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
