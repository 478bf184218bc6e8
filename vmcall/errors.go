package vmcall

import (
	"encoding/json"
	"errors"
	"strings"
)

// JSON-RPC error codes shared with the rest of the ecosystem.
const (
	errCodeInvalidParams = -32602
	errCodeVMError       = -32015
)

var errGateWaitTimeout = errors.New("timed out waiting for the execution gate")

// domainErrorPrefixes match the engine error texts that describe expected,
// benign execution failures. The prefixes are a fixed contract with the
// engine; anything else it reports is an infrastructure fault.
var domainErrorPrefixes = []string{
	"the tx doesn't have the correct nonce",
	"sender doesn't have enough funds",
	"insufficient balance for transfer",
}

// domainError reports whether err is a recognized domain execution error and
// returns its text.
func domainError(err error) (string, bool) {
	msg := err.Error()
	for _, prefix := range domainErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return msg, true
		}
	}
	return "", false
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
