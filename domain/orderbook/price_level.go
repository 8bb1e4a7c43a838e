package orderbook

// PriceLevel aggregates the positions resting at a single price. It is
// derived from a traversal; the book stores positions, not levels.
type PriceLevel struct {
	Price uint64

	TotalSize  uint64
	OrderCount int
}
