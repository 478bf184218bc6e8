// Package vmstate assembles the account and storage view the execution
// engine runs against. State is paged in from the network on demand through
// fallback overlays and anchored to a single block number; local writes made
// during execution shadow fetched values. One Provider serves exactly one
// execution invocation and is never shared across requests.
package vmstate

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/zircuit-labs/zkr-go-common/xerrors/stacktrace"
	"golang.org/x/sync/errgroup"

	"github.com/zircuit-labs/provider-engine/fallback"
	"github.com/zircuit-labs/provider-engine/metrics"
)

type (
	// Caller issues ledger queries, normally through the dispatch chain.
	Caller interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	// Account is the unified view of one account's state. It is derived per
	// query from fallback fetches, never persisted beyond one execution.
	Account struct {
		Nonce   uint64
		Balance *uint256.Int
		Code    []byte
		Exists  bool
	}

	// State is the sole state-access surface handed to the execution engine.
	// The engine cannot distinguish a value written locally from one paged in
	// from upstream.
	State interface {
		GetAccount(ctx context.Context, addr common.Address) (*Account, error)
		GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
		SetAccount(addr common.Address, account *Account)
		SetStorage(addr common.Address, slot, value common.Hash)
	}

	// Provider implements State against a Caller.
	Provider struct {
		caller       Caller
		blockTag     string // hex block number the whole view is anchored to
		fetchTimeout time.Duration
		collector    *metrics.Metrics

		accounts *fallback.Store[*Account]

		mu      sync.Mutex
		storage map[common.Address]*fallback.Trie
	}

	// Option configures a Provider.
	Option func(*Provider)
)

// WithFetchTimeout bounds each fallback fetch. Zero preserves the default of
// waiting indefinitely.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Provider) { p.fetchTimeout = d }
}

// WithMetrics counts the fallback fetches the provider issues.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(p *Provider) { p.collector = collector }
}

// New creates a state provider anchored to the given block number.
func New(caller Caller, blockNumber *big.Int, opts ...Option) *Provider {
	p := &Provider{
		caller:   caller,
		blockTag: hexutil.EncodeBig(blockNumber),
		storage:  make(map[common.Address]*fallback.Trie),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.accounts = fallback.NewStore(p.fetchAccount)
	return p
}

// GetAccount returns the account state for addr, fetching nonce, balance and
// code concurrently on first touch.
func (p *Provider) GetAccount(ctx context.Context, addr common.Address) (*Account, error) {
	return p.accounts.Get(ctx, addr.Hex())
}

// SetAccount overrides the account state for addr locally.
func (p *Provider) SetAccount(addr common.Address, account *Account) {
	p.accounts.Set(addr.Hex(), account)
}

// GetStorage returns the storage word at slot of addr. The per-address
// overlay trie is constructed lazily the first time the address's storage is
// touched.
func (p *Provider) GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	return p.trieFor(addr).Get(ctx, slot)
}

// SetStorage overrides the storage word at slot of addr locally.
func (p *Provider) SetStorage(addr common.Address, slot, value common.Hash) {
	p.trieFor(addr).Set(slot, value)
}

func (p *Provider) trieFor(addr common.Address) *fallback.Trie {
	p.mu.Lock()
	defer p.mu.Unlock()
	trie, ok := p.storage[addr]
	if !ok {
		trie = fallback.NewTrie(func(ctx context.Context, slot common.Hash) (common.Hash, error) {
			return p.fetchSlot(ctx, addr, slot)
		})
		p.storage[addr] = trie
	}
	return trie
}

// fetchAccount issues the three account queries concurrently and joins them,
// failing fast on the first error.
func (p *Provider) fetchAccount(ctx context.Context, key string) (*Account, error) {
	addr := common.HexToAddress(key)
	if p.collector != nil {
		p.collector.IncFallbackFetch("account")
	}
	ctx, cancel := p.fetchContext(ctx)
	defer cancel()

	var (
		nonce   hexutil.Uint64
		balance hexutil.Big
		code    hexutil.Bytes
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.caller.CallContext(gctx, &nonce, "eth_getTransactionCount", addr, p.blockTag)
	})
	g.Go(func() error {
		return p.caller.CallContext(gctx, &balance, "eth_getBalance", addr, p.blockTag)
	})
	g.Go(func() error {
		return p.caller.CallContext(gctx, &code, "eth_getCode", addr, p.blockTag)
	})
	if err := g.Wait(); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	bal, overflow := uint256.FromBig((*big.Int)(&balance))
	if overflow {
		return nil, stacktrace.Wrap(errBalanceOverflow(addr))
	}
	account := &Account{
		Nonce:   uint64(nonce),
		Balance: bal,
		Code:    code,
	}
	account.Exists = account.Nonce != 0 || bal.Sign() != 0 || len(account.Code) != 0
	return account, nil
}

func (p *Provider) fetchSlot(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if p.collector != nil {
		p.collector.IncFallbackFetch("slot")
	}
	ctx, cancel := p.fetchContext(ctx)
	defer cancel()

	var word hexutil.Bytes
	if err := p.caller.CallContext(ctx, &word, "eth_getStorageAt", addr, slot, p.blockTag); err != nil {
		return common.Hash{}, stacktrace.Wrap(err)
	}
	return common.BytesToHash(word), nil
}

func (p *Provider) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.fetchTimeout > 0 {
		return context.WithTimeout(ctx, p.fetchTimeout)
	}
	return context.WithCancel(ctx)
}
