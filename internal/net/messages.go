// Package net is the TCP wire protocol for direct order submission
// (spec.md §6's "binary protocol" external interface), adapted from the
// teacher's fixed-width framing. Unlike the teacher's version, every
// price and quantity crosses the wire as a decimal string, never a
// float64, and order IDs are the raw 16-byte UUID form rather than a
// truncated string copy.
package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"clobcore/internal/common"
	"clobcore/internal/engine"
	"clobcore/internal/money"

	"github.com/google/uuid"
)

var (
	ErrInvalidMessageType = errors.New("net: invalid message type")
	ErrMessageTooShort    = errors.New("net: message too short")
	ErrInvalidUUID        = errors.New("net: invalid uuid")
	ErrImproperConversion = errors.New("net: improper type conversion")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
)

type Message interface {
	GetType() MessageType
}

const baseMessageHeaderLen = 2 // message type

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

// parseMessage strips the 2-byte type header and dispatches to the
// variant-specific parser.
func parseMessage(msg []byte) (Message, error) {
	if len(msg) < baseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	default:
		return nil, ErrInvalidMessageType
	}
}

// NewOrderMessage carries one order submission. Every variable-length
// field (Market, Price, MaxQuote, Quantity, UserID) is framed as a
// 2-byte big-endian length followed by that many bytes; Price and
// MaxQuote are empty strings when absent (market order, limit ask).
type NewOrderMessage struct {
	BaseMessage
	Market   string
	Side     common.Side
	Kind     common.OrderKind
	Price    string
	MaxQuote string
	Quantity string
	UserID   string
}

func (m *NewOrderMessage) toPlaceOrder() (engine.PlaceOrder, error) {
	pair, err := common.ParseTradingPair(m.Market)
	if err != nil {
		return engine.PlaceOrder{}, fmt.Errorf("net: invalid market %q: %w", m.Market, err)
	}
	qty, err := money.Parse(m.Quantity)
	if err != nil {
		return engine.PlaceOrder{}, fmt.Errorf("net: invalid quantity: %w", err)
	}

	var price money.Decimal
	if m.Price != "" {
		if price, err = money.Parse(m.Price); err != nil {
			return engine.PlaceOrder{}, fmt.Errorf("net: invalid price: %w", err)
		}
	}

	var maxQuote *money.Decimal
	if m.MaxQuote != "" {
		mq, err := money.Parse(m.MaxQuote)
		if err != nil {
			return engine.PlaceOrder{}, fmt.Errorf("net: invalid max_quote: %w", err)
		}
		maxQuote = &mq
	}

	return engine.PlaceOrder{
		Pair: pair, Side: m.Side, Kind: m.Kind, UserID: m.UserID,
		Quantity: qty, Price: price, MaxQuote: maxQuote,
		Timestamp: time.Now().UTC(),
		Reply:     make(chan engine.Response, 1),
	}, nil
}

func parseNewOrder(msg []byte) (*NewOrderMessage, error) {
	r := &byteReader{buf: msg}
	market, err := r.readString()
	if err != nil {
		return nil, err
	}
	side, err := r.readByte()
	if err != nil {
		return nil, err
	}
	kind, err := r.readByte()
	if err != nil {
		return nil, err
	}
	price, err := r.readString()
	if err != nil {
		return nil, err
	}
	maxQuote, err := r.readString()
	if err != nil {
		return nil, err
	}
	quantity, err := r.readString()
	if err != nil {
		return nil, err
	}
	userID, err := r.readString()
	if err != nil {
		return nil, err
	}

	return &NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder},
		Market:      market, Side: common.Side(side), Kind: common.OrderKind(kind),
		Price: price, MaxQuote: maxQuote, Quantity: quantity, UserID: userID,
	}, nil
}

// CancelOrderMessage carries the 16 raw bytes of the UUID being
// canceled — never the teacher's truncated string copy.
type CancelOrderMessage struct {
	BaseMessage
	OrderID uuid.UUID
}

const cancelOrderMessageLen = 16

func parseCancelOrder(msg []byte) (*CancelOrderMessage, error) {
	if len(msg) < cancelOrderMessageLen {
		return nil, ErrMessageTooShort
	}
	id, err := uuid.FromBytes(msg[:16])
	if err != nil {
		return nil, ErrInvalidUUID
	}
	return &CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}, OrderID: id}, nil
}

// byteReader is a small cursor over a length-prefixed wire buffer.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readByte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrMessageTooShort
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readString() (string, error) {
	if r.pos+2 > len(r.buf) {
		return "", ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2]))
	r.pos += 2
	if r.pos+n > len(r.buf) {
		return "", ErrMessageTooShort
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func writeString(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

func writeUUID(buf []byte, id uuid.UUID) []byte {
	data, _ := id.MarshalBinary()
	return append(buf, data...)
}

// Report is the response sent back over the same connection for both
// NewOrder and CancelOrder, carrying any resulting trades.
type Report struct {
	Status  engine.ResponseStatus
	OrderID uuid.UUID
	Err     string
	Trades  []reportTrade
}

type reportTrade struct {
	TradeID       uuid.UUID
	Price         string
	Quantity      string
	BuyerOrderID  uuid.UUID
	SellerOrderID uuid.UUID
	Timestamp     time.Time
}

func reportFromResponse(resp engine.Response) Report {
	r := Report{Status: resp.Status, OrderID: resp.OrderID}
	if resp.Err != nil {
		r.Err = resp.Err.Error()
	}
	for _, t := range resp.Trades {
		r.Trades = append(r.Trades, reportTrade{
			TradeID: t.ID, Price: t.Price.String(), Quantity: t.Quantity.String(),
			BuyerOrderID: t.BuyerOrderID, SellerOrderID: t.SellerOrderID, Timestamp: t.Timestamp,
		})
	}
	return r
}

// Serialize packs the report for wire transmission: 1-byte status,
// 16-byte order id, length-prefixed error string, 2-byte trade count,
// then each trade's fields.
func (r *Report) Serialize() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(r.Status))
	buf = writeUUID(buf, r.OrderID)
	buf = writeString(buf, r.Err)

	countBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(countBuf, uint16(len(r.Trades)))
	buf = append(buf, countBuf...)

	for _, t := range r.Trades {
		buf = writeUUID(buf, t.TradeID)
		buf = writeString(buf, t.Price)
		buf = writeString(buf, t.Quantity)
		buf = writeUUID(buf, t.BuyerOrderID)
		buf = writeUUID(buf, t.SellerOrderID)
		tsBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(tsBuf, uint64(t.Timestamp.UnixNano()))
		buf = append(buf, tsBuf...)
	}
	return buf
}

func serializeErrorReport(err error) []byte {
	r := Report{Status: engine.Rejected, Err: err.Error()}
	return r.Serialize()
}
