// Package vmcall resolves simulation and gas-estimation calls against an
// execution engine running on network-backed overlay state. Runs are
// serialized through a gate shared by all invocations of one subprovider, so
// the engine never executes two transactions concurrently.
package vmcall

import (
	"context"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zircuit-labs/zkr-go-common/xerrors/stacktrace"

	"github.com/zircuit-labs/provider-engine/gate"
	"github.com/zircuit-labs/provider-engine/heads"
	"github.com/zircuit-labs/provider-engine/metrics"
	"github.com/zircuit-labs/provider-engine/pelog"
	"github.com/zircuit-labs/provider-engine/provider"
	"github.com/zircuit-labs/provider-engine/txargs"
	"github.com/zircuit-labs/provider-engine/vmstate"
)

const (
	methodCall        = "eth_call"
	methodEstimateGas = "eth_estimateGas"
)

type (
	// Caller issues fallback fetches through the dispatch chain.
	Caller interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	// Call is the execution request handed to the engine.
	Call struct {
		From     common.Address
		To       *common.Address
		Gas      uint64
		GasPrice *hexutil.Big
		Value    *hexutil.Big
		Data     []byte
	}

	// Result is what a completed engine run produces.
	Result struct {
		ReturnValue []byte
		GasUsed     uint64
	}

	// Engine is the opaque execution capability: run one transaction against
	// a block context and a state view. A returned error whose text starts
	// with one of the recognized domain prefixes is treated as an expected
	// execution failure rather than an infrastructure fault; a structured
	// error category on this interface would supersede that prefix contract.
	Engine interface {
		Run(ctx context.Context, call *Call, block *heads.BlockContext, state vmstate.State) (*Result, error)
	}

	// Subprovider handles eth_call and eth_estimateGas.
	Subprovider struct {
		caller Caller
		engine Engine
		heads  heads.Source
		gate   *gate.Gate

		logger    *slog.Logger
		collector *metrics.Metrics

		evmTimeout   time.Duration
		waitTimeout  time.Duration
		fetchTimeout time.Duration

		methods mapset.Set[string]
	}

	// Option configures a Subprovider.
	Option func(*Subprovider)

	outcome struct {
		result *Result
		err    error
	}
)

// WithEVMTimeout bounds a single engine run. Zero means no limit.
func WithEVMTimeout(d time.Duration) Option {
	return func(s *Subprovider) { s.evmTimeout = d }
}

// WithWaitTimeout bounds how long a request waits for its turn behind the
// gate, including the run itself. Zero preserves the default of waiting
// indefinitely.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Subprovider) { s.waitTimeout = d }
}

// WithFetchTimeout bounds each state fallback fetch. Zero means no limit.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Subprovider) { s.fetchTimeout = d }
}

// WithLogger overrides the subprovider's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subprovider) { s.logger = logger }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(s *Subprovider) { s.collector = collector }
}

// New creates the execution subprovider. The gate it allocates lives as long
// as the subprovider and is the only state shared across invocations.
func New(caller Caller, engine Engine, source heads.Source, opts ...Option) *Subprovider {
	s := &Subprovider{
		caller:  caller,
		engine:  engine,
		heads:   source,
		gate:    gate.New(),
		logger:  pelog.NewWith("subprovider", "vmcall"),
		methods: mapset.NewThreadUnsafeSet(methodCall, methodEstimateGas),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subprovider) Name() string { return "vmcall" }

// HandleRequest resolves eth_call and eth_estimateGas and declines everything
// else.
func (s *Subprovider) HandleRequest(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if !s.methods.Contains(req.Method) {
		return nil, provider.ErrNotHandled
	}

	var args txargs.TransactionArgs
	if err := req.Param(0, &args); err != nil {
		return provider.NewErrorResponse(req, &provider.ErrorObject{
			Code:    errCodeInvalidParams,
			Message: err.Error(),
		}), nil
	}

	block, err := s.heads.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	// Fresh overlay per invocation: nothing leaks between requests.
	var stateOpts []vmstate.Option
	if s.fetchTimeout > 0 {
		stateOpts = append(stateOpts, vmstate.WithFetchTimeout(s.fetchTimeout))
	}
	if s.collector != nil {
		stateOpts = append(stateOpts, vmstate.WithMetrics(s.collector))
	}
	state := vmstate.New(s.caller, block.Number, stateOpts...)

	call := &Call{
		From:     args.Sender(),
		To:       args.To,
		GasPrice: args.GasPrice,
		Value:    args.Value,
		Data:     args.Payload(),
	}
	if args.Gas != nil {
		call.Gas = uint64(*args.Gas)
	} else {
		call.Gas = block.GasLimit
	}

	res, err := s.run(ctx, call, block, state)
	if err != nil {
		if reason, ok := domainError(err); ok {
			s.logger.Debug("Execution finished with expected failure", "method", req.Method, "reason", reason)
			return s.resolveDomainError(req, reason), nil
		}
		return nil, stacktrace.Wrap(err)
	}

	switch req.Method {
	case methodEstimateGas:
		return provider.NewResponse(req, hexutil.Uint64(res.GasUsed))
	default:
		return provider.NewResponse(req, hexutil.Bytes(res.ReturnValue))
	}
}

// run enqueues the engine invocation behind the gate and waits for it to
// complete. The gate is released exactly once per acquisition, on success and
// failure alike.
func (s *Subprovider) run(ctx context.Context, call *Call, block *heads.BlockContext, state vmstate.State) (*Result, error) {
	done := make(chan outcome, 1)
	enqueued := time.Now()
	s.gate.Await(func() {
		s.gate.Close()
		defer s.gate.Open()
		if s.collector != nil {
			s.collector.ObserveGateWait(time.Since(enqueued))
		}
		runCtx, cancel := s.runContext(ctx)
		defer cancel()
		res, err := s.engine.Run(runCtx, call, block, state)
		done <- outcome{result: res, err: err}
	})

	var timeout <-chan time.Time
	if s.waitTimeout > 0 {
		timer := time.NewTimer(s.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case o := <-done:
		return o.result, o.err
	case <-timeout:
		return nil, errGateWaitTimeout
	case <-ctx.Done():
		// The continuation still runs to completion and reopens the gate;
		// only this request stops waiting for it.
		return nil, ctx.Err()
	}
}

func (s *Subprovider) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.evmTimeout > 0 {
		return context.WithTimeout(ctx, s.evmTimeout)
	}
	return context.WithCancel(ctx)
}

// resolveDomainError surfaces an expected execution failure as a successful
// response carrying an error member next to the placeholder empty result.
func (s *Subprovider) resolveDomainError(req *provider.Request, reason string) *provider.Response {
	resp := provider.NewErrorResponse(req, &provider.ErrorObject{
		Code:    errCodeVMError,
		Message: reason,
	})
	if req.Method == methodEstimateGas {
		resp.Result = mustMarshal(hexutil.Uint64(0))
	} else {
		resp.Result = mustMarshal(hexutil.Bytes(nil))
	}
	return resp
}
