package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// AccountsRequest is the body of POST /v1/accounts
type AccountsRequest struct {
	IDs    []string `json:"ids"`
	Fields []string `json:"fields"`
	Chains []string `json:"chains"`
}

// WhereClause is one predicate of a transaction query
type WhereClause struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// TransactionsRequest is the body of POST /v1/transactions
type TransactionsRequest struct {
	Hashes []string      `json:"hashes"`
	Block  string        `json:"block"`
	Where  []WhereClause `json:"where"`
	Fields []string      `json:"fields"`
	Chains []string      `json:"chains"`
}

// AccountsResponse wraps account rows
type AccountsResponse struct {
	Results []*types.AccountResult `json:"results"`
}

// TransactionsResponse wraps transaction rows
type TransactionsResponse struct {
	Results []*types.TransactionResult `json:"results"`
}

// ErrorResponse is written for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	var req AccountsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ids, err := types.AccountIDs(req.IDs)
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	fields, err := types.ParseAccountFields(req.Fields)
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	targets, err := parseTargets(req.Chains, s.config.AllowRPCURLs)
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	results, err := s.engine.ResolveAccounts(r.Context(), ids, fields, targets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*types.AccountResult{}
	}
	s.writeJSON(w, http.StatusOK, AccountsResponse{Results: results})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	var req TransactionsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	q, err := req.query()
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	targets, err := parseTargets(req.Chains, s.config.AllowRPCURLs)
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	results, err := s.engine.ResolveTransactions(r.Context(), q, targets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*types.TransactionResult{}
	}
	s.writeJSON(w, http.StatusOK, TransactionsResponse{Results: results})
}

// query converts the body into a transaction query. Hashes and block are
// both optional here; the resolver rejects a query with neither.
func (req *TransactionsRequest) query() (*types.TransactionQuery, error) {
	q := &types.TransactionQuery{}

	for _, h := range req.Hashes {
		b, err := hexutil.Decode(h)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("invalid transaction hash %q", h)
		}
		q.IDs = append(q.IDs, common.BytesToHash(b))
	}

	if req.Block != "" {
		id, err := types.ParseBlockID(req.Block)
		if err != nil {
			return nil, err
		}
		q.Block = &id
	}

	for _, clause := range req.Where {
		p, err := types.ParsePredicate(clause.Field, clause.Op, clause.Value)
		if err != nil {
			return nil, err
		}
		q.Predicates = append(q.Predicates, p)
	}

	fields, err := types.ParseTransactionFields(req.Fields)
	if err != nil {
		return nil, err
	}
	q.Fields = fields
	return q, nil
}

// parseTargets parses chain names. Raw RPC URLs are rejected unless allowURLs is set.
func parseTargets(names []string, allowURLs bool) ([]chain.Target, error) {
	if len(names) == 0 {
		return nil, chain.ErrEmptyTarget
	}
	targets := make([]chain.Target, 0, len(names))
	for _, name := range names {
		t, err := chain.ParseTarget(name)
		if err != nil {
			return nil, err
		}
		if _, named := t.Chain(); !named && !allowURLs {
			return nil, fmt.Errorf("%w: rpc url targets are disabled on this server", chain.ErrInvalidRPCURL)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// decode reads a single JSON object from a size capped body
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return badRequest(errors.New("invalid request body: trailing data"))
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("query failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("query rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
