package fallback

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type (
	// SlotFetchFunc retrieves one storage word from the fallback source.
	SlotFetchFunc func(ctx context.Context, slot common.Hash) (common.Hash, error)

	// Trie is the sparse storage-slot specialization of Store: values
	// materialize lazily, one slot at a time, exactly as the execution
	// engine requests them.
	Trie struct {
		slots *Store[common.Hash]
	}
)

// NewTrie creates a storage overlay backed by fetch. With a nil fetch, slots
// never written locally read as the empty word.
func NewTrie(fetch SlotFetchFunc) *Trie {
	if fetch == nil {
		return &Trie{slots: NewStore[common.Hash](nil)}
	}
	return &Trie{slots: NewStore(func(ctx context.Context, key string) (common.Hash, error) {
		return fetch(ctx, common.HexToHash(key))
	})}
}

// Get returns the word stored at slot.
func (t *Trie) Get(ctx context.Context, slot common.Hash) (common.Hash, error) {
	return t.slots.Get(ctx, slot.Hex())
}

// Set writes the word at slot locally.
func (t *Trie) Set(slot, value common.Hash) {
	t.slots.Set(slot.Hex(), value)
}
