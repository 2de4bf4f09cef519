// Package broker defines the order-placement and credential boundaries
// between the engine and the trading venue.
package broker

import (
	"context"
	"fmt"
	"sync/atomic"
)

// OrderRequest is what the engine emits when it wants a fill.
type OrderRequest struct {
	Side       string // "BUY" or "SELL"
	Instrument string
	Quantity   int
}

// OrderResult is the venue's answer. A rejected or errored order leaves
// the engine flat; no position is created optimistically.
type OrderResult struct {
	Accepted bool
	OrderID  string
	Reason   string
}

// OrderPlacer places market orders with the venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// AcceptAll is the replay/backtest placer: every order fills
// immediately with a synthetic order id.
type AcceptAll struct {
	seq atomic.Int64
}

func (a *AcceptAll) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	_ = ctx
	n := a.seq.Add(1)
	return OrderResult{Accepted: true, OrderID: fmt.Sprintf("SIM-%06d", n)}, nil
}
