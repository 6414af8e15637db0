package trie

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"chainsim/storage"
)

// Root computes the Merkle-Patricia root of every record visible through kv.
//
// Keys are hashed (keccak256) before insertion, matching the historical
// behaviour of the state trie: the stack trie only accepts fixed-width keys
// in ascending order, and raw module keys may be prefixes of one another.
// The empty store hashes to the canonical empty root.
func Root(kv storage.KVStore) (common.Hash, error) {
	type entry struct {
		key   []byte
		value []byte
	}
	entries := make([]entry, 0)
	err := kv.Iterate(nil, func(key, value []byte) (bool, error) {
		entries = append(entries, entry{key: ethcrypto.Keccak256(key), value: bytes.Clone(value)})
		return false, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	if len(entries) == 0 {
		return gethtypes.EmptyRootHash, nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
	st := gethtrie.NewStackTrie(nil)
	for _, e := range entries {
		if err := st.Update(e.key, e.value); err != nil {
			return common.Hash{}, err
		}
	}
	return st.Hash(), nil
}
