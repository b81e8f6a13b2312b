package multichain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the multichain package.
var (
	// Gateway lifecycle errors
	ErrGatewayClosed = errors.New("gateway is closed")

	// Initialization errors
	ErrDialFailed = errors.New("failed to dial chain")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Operation errors
	ErrQueryFailed = errors.New("query failed")
)

// ChainError wraps an error with chain context.
type ChainError struct {
	ChainID string
	Op      error
	Err     error
}

// NewChainError creates a new chain error.
func NewChainError(chainID string, op error, err error) *ChainError {
	return &ChainError{
		ChainID: chainID,
		Op:      op,
		Err:     err,
	}
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain %s: %v: %v", e.ChainID, e.Op, e.Err)
	}
	return fmt.Sprintf("chain %s: %v", e.ChainID, e.Op)
}

// Unwrap returns the underlying error.
func (e *ChainError) Unwrap() error {
	return e.Err
}

// Is checks if the target error matches.
func (e *ChainError) Is(target error) bool {
	return errors.Is(e.Op, target) || errors.Is(e.Err, target)
}
