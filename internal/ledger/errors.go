package ledger

import "errors"

// Sentinel errors returned by ledger operations. They never escape the
// component as panics; the API layer maps them to HTTP status codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidSide        = errors.New("side must be BUY or SELL")

	// ErrTradeFailed wraps unexpected storage failures during settlement.
	// The whole trade has been rolled back when it is returned.
	ErrTradeFailed = errors.New("trade failed")
)
