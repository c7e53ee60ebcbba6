package venue

import "errors"

var (
	ErrPoolNotFound   = errors.New("venue: pool not found")
	ErrTokenNotInPool = errors.New("venue: token not in pool")
	ErrInvalidIndices = errors.New("venue: invalid pool indices")
	ErrDeadline       = errors.New("venue: hop deadline exceeded")
	ErrAmountTooSmall = errors.New("venue: amount too small")
	ErrSlippage       = errors.New("venue: output below minimum")
)
