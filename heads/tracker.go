package heads

import (
	"context"
	"sync"
	"time"

	"github.com/zircuit-labs/zkr-go-common/xerrors/stacktrace"
)

type (
	// Caller issues ledger queries, normally through the dispatch chain.
	Caller interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	// Tracker serves the current block context by querying the chain head
	// through the dispatch chain, reusing the last snapshot for a short TTL
	// so that a burst of simulations does not hammer the upstream.
	Tracker struct {
		caller Caller
		ttl    time.Duration

		mu        sync.Mutex
		last      *BlockContext
		fetchedAt time.Time
	}
)

// NewTracker creates a tracker. A zero ttl disables caching and fetches the
// head for every call.
func NewTracker(caller Caller, ttl time.Duration) *Tracker {
	return &Tracker{caller: caller, ttl: ttl}
}

// CurrentBlock returns the latest block's context.
func (t *Tracker) CurrentBlock(ctx context.Context) (*BlockContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last != nil && t.ttl > 0 && time.Since(t.fetchedAt) < t.ttl {
		return t.last, nil
	}

	var head rpcHeader
	if err := t.caller.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, stacktrace.Wrap(err)
	}
	t.last = head.toBlockContext()
	t.fetchedAt = time.Now()
	return t.last, nil
}
