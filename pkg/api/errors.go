package api

import (
	"errors"
	"net/http"

	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/resolver"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// requestError marks a body that could not be turned into a query
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

// clientErrors are failures caused by the query itself rather than a chain
var clientErrors = []error{
	resolver.ErrEntityMismatch,
	resolver.ErrMissingHashOrFilter,
	types.ErrUnknownField,
	types.ErrInvalidBlockID,
	types.ErrInvalidNameOrAddress,
	types.ErrInvalidOperator,
	types.ErrInvalidOperand,
	types.ErrOperatorNotSupported,
	chain.ErrUnknownChain,
	chain.ErrInvalidRPCURL,
	chain.ErrEmptyTarget,
	fetch.ErrInvalidBlockRange,
	fetch.ErrBlockRangeTooLarge,
}

// statusFor maps a query error to an HTTP status
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, resolver.ErrNameResolution) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
