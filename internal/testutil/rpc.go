package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ---- Mock JSON-RPC Server Infrastructure ----

type jrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type jrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is a JSON-RPC error object returned by a handler
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MethodHandler answers one JSON-RPC method
type MethodHandler func(params json.RawMessage) (json.RawMessage, *RPCError)

// MockRPC is an httptest JSON-RPC server dispatching by method name.
// It supports batches and counts calls per method.
type MockRPC struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]MethodHandler
	calls    map[string]int
}

// NewMockRPC starts a mock server closed at test cleanup
func NewMockRPC(t *testing.T, handlers map[string]MethodHandler) *MockRPC {
	t.Helper()
	m := &MockRPC{
		handlers: make(map[string]MethodHandler, len(handlers)),
		calls:    make(map[string]int),
	}
	for method, h := range handlers {
		m.handlers[method] = h
	}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		defer r.Body.Close()

		w.Header().Set("Content-Type", "application/json")

		trimmed := strings.TrimSpace(string(body))
		if strings.HasPrefix(trimmed, "[") {
			var reqs []jrpcRequest
			if err := json.Unmarshal(body, &reqs); err != nil {
				http.Error(w, "invalid batch", 400)
				return
			}
			responses := make([]jrpcResponse, 0, len(reqs))
			for _, req := range reqs {
				responses = append(responses, m.dispatch(req))
			}
			json.NewEncoder(w).Encode(responses)
			return
		}

		var req jrpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid request", 400)
			return
		}
		json.NewEncoder(w).Encode(m.dispatch(req))
	}))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockRPC) dispatch(req jrpcRequest) jrpcResponse {
	m.mu.Lock()
	m.calls[req.Method]++
	handler, ok := m.handlers[req.Method]
	m.mu.Unlock()

	resp := jrpcResponse{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &RPCError{Code: -32601, Message: "method not found: " + req.Method}
		return resp
	}
	result, rpcErr := handler(req.Params)
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		if result == nil {
			result = json.RawMessage("null")
		}
		resp.Result = result
	}
	return resp
}

// URL returns the endpoint of the server
func (m *MockRPC) URL() string {
	return m.Server.URL
}

// Handle installs or replaces the handler of a method
func (m *MockRPC) Handle(method string, h MethodHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// Calls returns how many times method was requested
func (m *MockRPC) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of requests across all methods
func (m *MockRPC) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// ResetCalls zeroes the call counters
func (m *MockRPC) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// ---- Handler helpers ----

// ChainIDHandler answers eth_chainId with id
func ChainIDHandler(id uint64) MethodHandler {
	return StaticHandler(hexUint(id))
}

// StaticHandler always answers with the JSON encoding of result
func StaticHandler(result any) MethodHandler {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	return func(_ json.RawMessage) (json.RawMessage, *RPCError) {
		return raw, nil
	}
}

// ErrorHandler always answers with a server error
func ErrorHandler(msg string) MethodHandler {
	return func(_ json.RawMessage) (json.RawMessage, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: msg}
	}
}
