package book

import "errors"

var (
	// ErrDuplicateOrder rejects re-insertion of an already indexed order id.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrUnknownOrder rejects operations on ids the ledger does not hold.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrInvalidToken rejects the native-asset sentinel where an ERC20
	// token is required (the book side, availability lookups).
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidAmount rejects non-positive amounts and amount pairs
	// whose product overflows 256 bits.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSalt rejects salts outside the unsigned 256-bit range.
	ErrInvalidSalt = errors.New("invalid salt")

	// ErrOrderIDMismatch rejects an order whose id differs from the
	// chain-derived id of its fields.
	ErrOrderIDMismatch = errors.New("order id mismatch")

	// ErrSignerMismatch rejects an order whose signature does not
	// recover to its maker.
	ErrSignerMismatch = errors.New("signer mismatch")

	// ErrInactiveOrder rejects admission of an order the chain reports
	// as fully executed or cancelled.
	ErrInactiveOrder = errors.New("inactive order")
)
