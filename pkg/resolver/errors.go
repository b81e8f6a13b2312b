package resolver

import (
	"errors"
	"fmt"

	"github.com/0xmhha/chainquery/pkg/types"
)

// Sentinel errors for the resolver package.
var (
	// ErrEntityMismatch is returned when an id of the wrong entity kind is passed to a resolver
	ErrEntityMismatch = errors.New("entity kind mismatch")

	// ErrMissingHashOrFilter is returned when a transaction query names neither hashes nor a block
	ErrMissingHashOrFilter = errors.New("transaction query requires hashes or a block filter")

	// ErrNameResolution is returned when an account name cannot be turned into an address
	ErrNameResolution = errors.New("failed to resolve account name")

	// ErrBlockTransactionsNotFull is returned when a block arrives with hashes instead of bodies
	ErrBlockTransactionsNotFull = errors.New("block transactions are not full bodies")
)

// EntityMismatchError reports the first id whose kind does not fit the resolver
type EntityMismatchError struct {
	Index    int
	Expected types.EntityKind
	Got      types.EntityID
}

// Error implements the error interface.
func (e *EntityMismatchError) Error() string {
	return fmt.Sprintf("%v: id %d is %s, expected %s", ErrEntityMismatch, e.Index, e.Got, e.Expected)
}

// Is matches ErrEntityMismatch.
func (e *EntityMismatchError) Is(target error) bool {
	return target == ErrEntityMismatch
}
