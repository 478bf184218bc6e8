// Package txsender resolves transaction submission and account queries. A
// submission walks four steps strictly in order, approve, autofill, sign,
// submit, each delegated to an injected collaborator or the dispatch chain;
// the first failing step halts the pipeline.
package txsender

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zircuit-labs/zkr-go-common/xerrors/stacktrace"
	"golang.org/x/sync/errgroup"

	"github.com/zircuit-labs/provider-engine/journal"
	"github.com/zircuit-labs/provider-engine/pelog"
	"github.com/zircuit-labs/provider-engine/provider"
	"github.com/zircuit-labs/provider-engine/txargs"
)

const (
	methodSendTransaction    = "eth_sendTransaction"
	methodSendRawTransaction = "eth_sendRawTransaction"
	methodAccounts           = "eth_accounts"
	methodCoinbase           = "eth_coinbase"

	// defaultGas is applied when neither the caller nor the autofill step
	// produced a gas limit.
	defaultGas = hexutil.Uint64(0x9000)
)

type (
	// Caller issues requests back through the dispatch chain.
	Caller interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	// AccountSource lists the addresses this middleware can sign for.
	AccountSource interface {
		Accounts(ctx context.Context) ([]common.Address, error)
	}

	// Approver decides whether a transaction may be submitted.
	Approver interface {
		ApproveTransaction(ctx context.Context, args *txargs.TransactionArgs) (bool, error)
	}

	// Signer turns a fully filled transaction into raw signed bytes. There
	// is no default signer; configuring one is mandatory for submissions.
	Signer interface {
		SignTransaction(ctx context.Context, args *txargs.TransactionArgs) (hexutil.Bytes, error)
	}

	// Journal records completed submissions.
	Journal interface {
		Add(ctx context.Context, sub *journal.Submission) error
	}

	// Subprovider handles eth_sendTransaction, eth_accounts and eth_coinbase.
	Subprovider struct {
		caller   Caller
		accounts AccountSource
		approver Approver
		signer   Signer
		journal  Journal
		logger   *slog.Logger
		methods  mapset.Set[string]
	}

	// Option configures a Subprovider.
	Option func(*Subprovider)
)

// WithApprover installs an approval policy. Without one every transaction is
// allowed.
func WithApprover(approver Approver) Option {
	return func(s *Subprovider) { s.approver = approver }
}

// WithJournal records every completed submission.
func WithJournal(j Journal) Option {
	return func(s *Subprovider) { s.journal = j }
}

// WithLogger overrides the subprovider's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subprovider) { s.logger = logger }
}

// New creates the submission subprovider.
func New(caller Caller, accounts AccountSource, signer Signer, opts ...Option) *Subprovider {
	s := &Subprovider{
		caller:   caller,
		accounts: accounts,
		signer:   signer,
		logger:   pelog.NewWith("subprovider", "txsender"),
		methods:  mapset.NewThreadUnsafeSet(methodSendTransaction, methodAccounts, methodCoinbase),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subprovider) Name() string { return "txsender" }

// HandleRequest resolves the account and submission methods and declines
// everything else.
func (s *Subprovider) HandleRequest(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	switch {
	case !s.methods.Contains(req.Method):
		return nil, provider.ErrNotHandled
	case req.Method == methodAccounts:
		list, err := s.accountList(ctx)
		if err != nil {
			return nil, err
		}
		return provider.NewResponse(req, list)
	case req.Method == methodCoinbase:
		list, err := s.accountList(ctx)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return provider.NewResponse(req, nil)
		}
		return provider.NewResponse(req, list[0])
	default:
		return s.sendTransaction(ctx, req)
	}
}

func (s *Subprovider) accountList(ctx context.Context) ([]common.Address, error) {
	if s.accounts == nil {
		return []common.Address{}, nil
	}
	list, err := s.accounts.Accounts(ctx)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	if list == nil {
		list = []common.Address{}
	}
	return list, nil
}

// sendTransaction walks approve, autofill, sign, submit. Any failing step
// halts the pipeline; no side effect of a later step happens.
func (s *Subprovider) sendTransaction(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var args txargs.TransactionArgs
	if err := req.Param(0, &args); err != nil {
		return provider.NewErrorResponse(req, &provider.ErrorObject{
			Code:    errCodeInvalidParams,
			Message: err.Error(),
		}), nil
	}

	allowed, err := s.approve(ctx, &args)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	if !allowed {
		s.logger.Info("Transaction submission denied", "from", args.Sender())
		return provider.NewErrorResponse(req, &provider.ErrorObject{
			Code:    errCodeSubmissionDenied,
			Message: errSubmissionDenied.Error(),
		}), nil
	}

	if err := s.autofill(ctx, &args); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	if s.signer == nil {
		return nil, ErrNoSigner
	}
	rawTx, err := s.signer.SignTransaction(ctx, &args)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}

	// Forward the raw transaction through the chain and hand its result
	// back unchanged.
	var result json.RawMessage
	if err := s.caller.CallContext(ctx, &result, methodSendRawTransaction, rawTx); err != nil {
		return nil, err
	}

	s.record(ctx, &args, rawTx, result)
	if args.To == nil {
		s.logger.Info("Submitted contract creation", "from", args.Sender(), "nonce", uint64(*args.Nonce), "value", args.Amount())
	} else {
		s.logger.Info("Submitted transaction", "from", args.Sender(), "recipient", *args.To, "nonce", uint64(*args.Nonce), "value", args.Amount())
	}

	return &provider.Response{JSONRPC: provider.Vsn, ID: req.ID, Result: result}, nil
}

func (s *Subprovider) approve(ctx context.Context, args *txargs.TransactionArgs) (bool, error) {
	if s.approver == nil {
		return true, nil
	}
	return s.approver.ApproveTransaction(ctx, args)
}

// autofill fetches the current fee price and the sender's pending nonce
// concurrently and merges them into the transaction. Caller-supplied fields
// always win over autofilled values.
func (s *Subprovider) autofill(ctx context.Context, args *txargs.TransactionArgs) error {
	var (
		gasPrice hexutil.Big
		pending  hexutil.Uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.caller.CallContext(gctx, &gasPrice, "eth_gasPrice")
	})
	g.Go(func() error {
		return s.caller.CallContext(gctx, &pending, "eth_getTransactionCount", args.Sender(), "pending")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if args.GasPrice == nil {
		args.GasPrice = &gasPrice
	}
	if args.Nonce == nil {
		args.Nonce = &pending
	}
	if args.Gas == nil {
		gas := defaultGas
		args.Gas = &gas
	}
	return nil
}

// record journals the completed submission. Failures are logged, never
// surfaced: the transaction is already on its way.
func (s *Subprovider) record(ctx context.Context, args *txargs.TransactionArgs, rawTx []byte, result json.RawMessage) {
	if s.journal == nil {
		return
	}
	var txHash string
	_ = json.Unmarshal(result, &txHash)
	sub := &journal.Submission{
		TxHash:      txHash,
		FromAddr:    args.Sender().Hex(),
		Nonce:       uint64(*args.Nonce),
		GasPrice:    args.Price().String(),
		RawTx:       rawTx,
		SubmittedAt: time.Now(),
	}
	if args.To != nil {
		sub.ToAddr = args.To.Hex()
	}
	if err := s.journal.Add(ctx, sub); err != nil {
		s.logger.Warn("Failed to journal submission", "txHash", txHash, "err", err)
	}
}
