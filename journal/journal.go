// Package journal records transactions that passed through the submission
// pipeline. Recording is best-effort bookkeeping for operators; journal
// failures never fail a submission.
package journal

import (
	"time"

	"github.com/uptrace/bun"
)

type (
	// Submission is one signed transaction handed to the upstream, as it
	// looked at the submit step.
	Submission struct {
		bun.BaseModel `bun:"table:provider.submission,alias:s"`

		TxHash      string    `bun:"tx_hash,type:text"`             // Transaction hash reported by the upstream.
		FromAddr    string    `bun:"from_addr,type:text"`           // Sender address.
		ToAddr      string    `bun:"to_addr,type:text"`             // Recipient address, empty for contract creation.
		Nonce       uint64    `bun:"nonce,type:bigint"`             // Nonce the transaction was signed with.
		GasPrice    string    `bun:"gas_price,type:text"`           // Gas price in wei, decimal string.
		RawTx       []byte    `bun:"raw_tx,type:bytea"`             // The raw signed transaction bytes.
		SubmittedAt time.Time `bun:"submitted_at,type:timestamptz"` // When the submit step completed.
	}
)
