package ingress

import "errors"

var (
	ErrInvalidSide      = errors.New("ingress: invalid side")
	ErrInvalidOrderType = errors.New("ingress: invalid order_type")
	ErrInvalidMarket    = errors.New("ingress: invalid market")
	ErrMissingPrice     = errors.New("ingress: limit order missing price")
)
