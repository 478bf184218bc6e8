package vmcall

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/provider-engine/heads"
	"github.com/zircuit-labs/provider-engine/provider"
	"github.com/zircuit-labs/provider-engine/txargs"
	"github.com/zircuit-labs/provider-engine/vmstate"
)

type fakeEngine struct {
	mu       sync.Mutex
	calls    []*Call
	result   *Result
	err      error
	run      func(ctx context.Context) (*Result, error)
	active   atomic.Int32
	overlaps atomic.Int32
}

func (e *fakeEngine) Run(ctx context.Context, call *Call, _ *heads.BlockContext, _ vmstate.State) (*Result, error) {
	if e.active.Add(1) > 1 {
		e.overlaps.Add(1)
	}
	defer e.active.Add(-1)

	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()

	if e.run != nil {
		return e.run(ctx)
	}
	return e.result, e.err
}

func (e *fakeEngine) lastCall() *Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[len(e.calls)-1]
}

type fakeSource struct {
	block *heads.BlockContext
}

func (s *fakeSource) CurrentBlock(context.Context) (*heads.BlockContext, error) {
	return s.block, nil
}

type nopCaller struct{}

func (nopCaller) CallContext(context.Context, any, string, ...any) error {
	return errors.New("unexpected fallback fetch")
}

func testBlock() *heads.BlockContext {
	return &heads.BlockContext{
		Number:     big.NewInt(100),
		GasLimit:   0x6691b7,
		Difficulty: big.NewInt(2),
	}
}

func callRequest(t *testing.T, method string, args txargs.TransactionArgs) *provider.Request {
	t.Helper()
	req, err := provider.NewRequest(1, method, args)
	require.NoError(t, err)
	return req
}

func TestHandleRequestDeclinesOtherMethods(t *testing.T) {
	s := New(nopCaller{}, &fakeEngine{}, &fakeSource{block: testBlock()})

	req, err := provider.NewRequest(1, "eth_blockNumber")
	require.NoError(t, err)

	_, err = s.HandleRequest(context.Background(), req)
	require.ErrorIs(t, err, provider.ErrNotHandled)
}

func TestCallReturnsEmptyDataForEmptyExecution(t *testing.T) {
	engine := &fakeEngine{result: &Result{}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	resp, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"0x"`, string(resp.Result))
}

func TestCallReturnsEngineOutput(t *testing.T) {
	engine := &fakeEngine{result: &Result{ReturnValue: []byte{0xca, 0xfe}}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	resp, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.NoError(t, err)
	assert.JSONEq(t, `"0xcafe"`, string(resp.Result))
}

func TestEstimateGasReturnsGasUsed(t *testing.T) {
	engine := &fakeEngine{result: &Result{GasUsed: 21000}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	resp, err := s.HandleRequest(context.Background(), callRequest(t, methodEstimateGas, txargs.TransactionArgs{}))
	require.NoError(t, err)
	assert.JSONEq(t, `"0x5208"`, string(resp.Result))
}

func TestMissingParamsResolveAsInvalidParams(t *testing.T) {
	s := New(nopCaller{}, &fakeEngine{}, &fakeSource{block: testBlock()})

	req, err := provider.NewRequest(1, methodCall)
	require.NoError(t, err)

	resp, err := s.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeInvalidParams, resp.Error.Code)
}

func TestGasDefaultsToBlockGasLimit(t *testing.T) {
	engine := &fakeEngine{result: &Result{}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	_, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x6691b7), engine.lastCall().Gas)
}

func TestCallerSuppliedGasWins(t *testing.T) {
	engine := &fakeEngine{result: &Result{}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	gas := hexutil.Uint64(50000)
	_, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{Gas: &gas}))
	require.NoError(t, err)
	assert.Equal(t, uint64(50000), engine.lastCall().Gas)
}

func TestDomainErrorResolvesWithErrorMember(t *testing.T) {
	engine := &fakeEngine{err: errors.New("the tx doesn't have the correct nonce. account has nonce of: 3 tx has nonce of: 1")}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	resp, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeVMError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "correct nonce")
	assert.JSONEq(t, `"0x"`, string(resp.Result))
}

func TestDomainErrorOnEstimateCarriesZeroGas(t *testing.T) {
	engine := &fakeEngine{err: errors.New("sender doesn't have enough funds to send tx")}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	resp, err := s.HandleRequest(context.Background(), callRequest(t, methodEstimateGas, txargs.TransactionArgs{}))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeVMError, resp.Error.Code)
	assert.JSONEq(t, `"0x0"`, string(resp.Result))
}

func TestInfrastructureErrorPropagates(t *testing.T) {
	boom := errors.New("state backend unavailable")
	engine := &fakeEngine{err: boom}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	resp, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.ErrorIs(t, err, boom)
	assert.Nil(t, resp)
}

func TestConcurrentRunsNeverOverlap(t *testing.T) {
	engine := &fakeEngine{run: func(ctx context.Context) (*Result, error) {
		time.Sleep(5 * time.Millisecond)
		return &Result{}, nil
	}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
			assert.NoError(t, err)
			assert.NotNil(t, resp)
		}()
	}
	wg.Wait()

	assert.Zero(t, engine.overlaps.Load())
	assert.Len(t, engine.calls, 8)
}

func TestWaitTimeoutAbandonsTheRequest(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{run: func(ctx context.Context) (*Result, error) {
		<-release
		return &Result{}, nil
	}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()},
		WithWaitTimeout(10*time.Millisecond))
	defer close(release)

	_, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.ErrorIs(t, err, errGateWaitTimeout)
}

func TestCanceledContextStopsWaiting(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{run: func(ctx context.Context) (*Result, error) {
		<-release
		return &Result{}, nil
	}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := s.HandleRequest(ctx, callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestEVMTimeoutCancelsTheRunContext(t *testing.T) {
	engine := &fakeEngine{run: func(ctx context.Context) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()},
		WithEVMTimeout(5*time.Millisecond))

	_, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSenderDefaultsToZeroAddress(t *testing.T) {
	engine := &fakeEngine{result: &Result{}}
	s := New(nopCaller{}, engine, &fakeSource{block: testBlock()})

	_, err := s.HandleRequest(context.Background(), callRequest(t, methodCall, txargs.TransactionArgs{}))
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, engine.lastCall().From)
}
