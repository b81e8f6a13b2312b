package multichain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewChainError(t *testing.T) {
	underlyingErr := errors.New("connection refused")
	chainErr := NewChainError("ethereum", ErrDialFailed, underlyingErr)

	if chainErr == nil {
		t.Fatal("expected non-nil ChainError")
	}

	if chainErr.ChainID != "ethereum" {
		t.Errorf("expected ChainID 'ethereum', got '%s'", chainErr.ChainID)
	}

	if chainErr.Op != ErrDialFailed {
		t.Errorf("expected Op ErrDialFailed, got %v", chainErr.Op)
	}

	if chainErr.Err != underlyingErr {
		t.Errorf("expected underlying error, got %v", chainErr.Err)
	}
}

func TestChainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		chainErr *ChainError
		expected string
	}{
		{
			name: "with underlying error",
			chainErr: &ChainError{
				ChainID: "base",
				Op:      ErrDialFailed,
				Err:     errors.New("connection refused"),
			},
			expected: "chain base: failed to dial chain: connection refused",
		},
		{
			name: "without underlying error",
			chainErr: &ChainError{
				ChainID: "polygon",
				Op:      ErrQueryFailed,
				Err:     nil,
			},
			expected: "chain polygon: query failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.chainErr.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestChainError_Unwrap(t *testing.T) {
	underlyingErr := errors.New("timeout")
	chainErr := &ChainError{
		ChainID: "ethereum",
		Op:      ErrQueryFailed,
		Err:     underlyingErr,
	}

	unwrapped := chainErr.Unwrap()
	if unwrapped != underlyingErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlyingErr)
	}
}

func TestChainError_ErrorsIs(t *testing.T) {
	underlyingErr := errors.New("connection timeout")
	chainErr := NewChainError("ethereum", ErrQueryFailed, fmt.Errorf("fetch block: %w", underlyingErr))

	if !errors.Is(chainErr, ErrQueryFailed) {
		t.Error("errors.Is should match ErrQueryFailed")
	}

	if !errors.Is(chainErr, underlyingErr) {
		t.Error("errors.Is should match wrapped underlying error")
	}

	if errors.Is(chainErr, ErrDialFailed) {
		t.Error("errors.Is should not match ErrDialFailed")
	}

	var target *ChainError
	wrapped := fmt.Errorf("query: %w", chainErr)
	if !errors.As(wrapped, &target) || target.ChainID != "ethereum" {
		t.Error("errors.As should recover the chain error")
	}
}
