package engine

import (
	"clobcore/internal/common"

	"github.com/google/uuid"
)

// ResponseStatus tags which of PlaceOrder/CancelOrder's three outcomes a
// Response carries (spec.md §6's "success"/"error" JSON fields collapse
// these three cases; engine.go keeps them distinct internally).
type ResponseStatus int

const (
	Accepted ResponseStatus = iota
	Rejected
	Canceled
)

// Response is the per-command acknowledgement sent on the command's own
// Reply channel, matching spec.md §6's wire shape field-for-field.
type Response struct {
	RequestID uuid.UUID
	Status    ResponseStatus
	OrderID   uuid.UUID
	Trades    []common.Trade
	Err       error
}

func accepted(orderID uuid.UUID, trades []common.Trade) Response {
	return Response{Status: Accepted, OrderID: orderID, Trades: trades}
}

func rejected(err error) Response {
	return Response{Status: Rejected, Err: err}
}

func canceled(orderID uuid.UUID) Response {
	return Response{Status: Canceled, OrderID: orderID}
}
