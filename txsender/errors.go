package txsender

import "errors"

const (
	errCodeInvalidParams = -32602

	// errCodeSubmissionDenied follows EIP-1193's userRejectedRequest code.
	errCodeSubmissionDenied = 4001
)

// ErrNoSigner means no signing collaborator was configured. This is a
// configuration error, not a request error.
var ErrNoSigner = errors.New("transaction signing is not configured")

var errSubmissionDenied = errors.New("transaction submission denied")
