package mcp

import (
	"encoding/json"
	"fmt"
)

const jsonrpcVersion = "2.0"

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func newRequest(id int64, method string, params any) *request {
	return &request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

func newNotification(method string, params any) *notification {
	return &notification{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}
