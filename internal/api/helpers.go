package api

import (
	"errors"

	"clobcore/internal/common"

	"github.com/google/uuid"
)

var (
	errInvalidSide = errors.New("invalid side")
	errInvalidKind = errors.New("invalid order_type")
)

func parseSide(raw string) (common.Side, error) {
	switch raw {
	case "buy":
		return common.Buy, nil
	case "sell":
		return common.Sell, nil
	default:
		return 0, errInvalidSide
	}
}

func parseKind(raw string) (common.OrderKind, error) {
	switch raw {
	case "limit":
		return common.LimitOrder, nil
	case "market":
		return common.MarketOrder, nil
	default:
		return 0, errInvalidKind
	}
}

func parseUUID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}
