package provider

import (
	"encoding/json"
	"fmt"
)

// Vsn is the JSON-RPC protocol version spoken on the wire.
const Vsn = "2.0"

type (
	// Request is a single JSON-RPC request payload. The ID is kept as raw
	// JSON so that it can be echoed back verbatim whatever its type.
	Request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      json.RawMessage   `json:"id,omitempty"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	// Response answers exactly one Request, correlated by ID. A response may
	// carry both a result and an error: recognized execution failures are
	// reported through the error field of an otherwise successful response.
	Response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id,omitempty"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *ErrorObject    `json:"error,omitempty"`
	}

	// ErrorObject is the JSON-RPC error member.
	ErrorObject struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data,omitempty"`
	}
)

func (e *ErrorObject) Error() string { return e.Message }

// ErrorCode returns the JSON error code carried by the object.
func (e *ErrorObject) ErrorCode() int { return e.Code }

// ErrorData returns the attached error payload, if any.
func (e *ErrorObject) ErrorData() any { return e.Data }

// NewRequest assembles a request, marshalling each positional parameter.
func NewRequest(id uint64, method string, params ...any) (*Request, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	req := &Request{JSONRPC: Vsn, ID: rawID, Method: method}
	for _, param := range params {
		data, err := json.Marshal(param)
		if err != nil {
			return nil, fmt.Errorf("marshal param for %s: %w", method, err)
		}
		req.Params = append(req.Params, data)
	}
	return req, nil
}

// Param unmarshals the i-th positional parameter into v.
func (r *Request) Param(i int, v any) error {
	if i >= len(r.Params) {
		return fmt.Errorf("missing param %d for %s", i, r.Method)
	}
	return json.Unmarshal(r.Params[i], v)
}

// NewResponse marshals result into a response resolving req.
func NewResponse(req *Request, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Vsn, ID: req.ID, Result: data}, nil
}

// NewErrorResponse resolves req with an error payload. The request still
// counts as handled; dispatching stops.
func NewErrorResponse(req *Request, errObj *ErrorObject) *Response {
	return &Response{JSONRPC: Vsn, ID: req.ID, Error: errObj}
}
