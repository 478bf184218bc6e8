// Package provider implements a JSON-RPC middleware chain: requests are
// offered to an ordered list of subproviders, each of which may resolve the
// request locally or decline it; unresolved requests are forwarded verbatim
// to a terminal upstream transport.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/zircuit-labs/provider-engine/metrics"
	"github.com/zircuit-labs/provider-engine/pelog"
)

// ErrNotHandled is returned by a subprovider that does not recognize the
// request's method. It is not an error condition: dispatching continues with
// the next subprovider in the chain.
var ErrNotHandled = errors.New("method not handled by this subprovider")

type (
	// Subprovider is one handler in the dispatch chain. HandleRequest either
	// resolves the request (returning a response, or an error for
	// infrastructure failures) or declines it by returning ErrNotHandled.
	// A subprovider must not resolve a method it does not recognize.
	Subprovider interface {
		Name() string
		HandleRequest(ctx context.Context, req *Request) (*Response, error)
	}

	// Transport is the terminal upstream the chain falls back to. Requests
	// reach it unmodified.
	Transport interface {
		Send(ctx context.Context, req *Request) (*Response, error)
	}

	// Caller issues internally originated requests back through the chain,
	// mirroring the CallContext convention of an RPC client. Subproviders use
	// it for their fallback fetches so that another handler, or ultimately
	// the upstream, can serve them.
	Caller interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	// Engine owns the subprovider list and dispatches payloads through it.
	Engine struct {
		subproviders []Subprovider
		upstream     Transport
		logger       *slog.Logger
		collector    *metrics.Metrics
		reqID        atomic.Uint64
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithLogger overrides the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches a metrics collector to the engine.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(e *Engine) { e.collector = collector }
}

// NewEngine creates an engine with an empty chain and the given terminal
// transport. Subproviders are attached with Register.
func NewEngine(upstream Transport, opts ...Option) *Engine {
	e := &Engine{
		upstream: upstream,
		logger:   pelog.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register appends a subprovider to the chain. Registration order is
// dispatch order; first match wins.
func (e *Engine) Register(sp Subprovider) {
	e.subproviders = append(e.subproviders, sp)
}

// Dispatch offers req to each subprovider in registration order. The first
// one to resolve it ends the iteration; a declined request moves on to the
// next handler, and a request nobody resolves is forwarded to the upstream
// transport, whose response is returned unchanged.
func (e *Engine) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	for _, sp := range e.subproviders {
		resp, err := sp.HandleRequest(ctx, req)
		if errors.Is(err, ErrNotHandled) {
			continue
		}
		if err != nil {
			e.logger.Error("Subprovider failed", "method", req.Method, "subprovider", sp.Name(), "err", err)
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("subprovider %s resolved %s with no response", sp.Name(), req.Method)
		}
		resp.ID = req.ID
		if e.collector != nil {
			e.collector.IncResolved(req.Method, sp.Name())
		}
		e.logger.Debug("Request resolved locally", "method", req.Method, "subprovider", sp.Name())
		return resp, nil
	}
	if e.collector != nil {
		e.collector.IncUpstreamForward(req.Method)
	}
	e.logger.Debug("Request forwarded upstream", "method", req.Method)
	return e.upstream.Send(ctx, req)
}

// CallContext dispatches an internally originated request and unmarshals its
// result into result (unless result is nil). A response carrying an error
// member is returned as that error.
func (e *Engine) CallContext(ctx context.Context, result any, method string, args ...any) error {
	req, err := NewRequest(e.reqID.Add(1), method, args...)
	if err != nil {
		return err
	}
	resp, err := e.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		resp.Result = json.RawMessage("null")
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}
