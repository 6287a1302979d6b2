package domain

import "errors"

// Validation errors returned by the domain types and the rebalancing engine.
// All of them are detected synchronously; nothing is retried internally.
var (
	// ErrInvalidQuantity is returned when a trade quantity is zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")

	// ErrInvalidPrice is returned when a price is zero or negative.
	ErrInvalidPrice = errors.New("price must be greater than zero")

	// ErrInsufficientPosition is returned when a sell exceeds the held quantity.
	ErrInsufficientPosition = errors.New("sell quantity exceeds held quantity")

	// ErrInvalidStrategy is returned when a rebalancing strategy fails validation
	// (empty target weights, or weights not summing to 1).
	ErrInvalidStrategy = errors.New("invalid rebalancing strategy")

	// ErrMissingPriceData is returned when a symbol that needs trading has no quote.
	ErrMissingPriceData = errors.New("missing price data")
)
