// Command client is a small CLI exerciser for the binary TCP protocol
// (clobcore/internal/net), adapted from the teacher's client.go. Unlike
// the teacher's version it sends exact decimal strings for price and
// quantity and a full 16-byte UUID for cancellation, rather than
// float64s and a truncated string copy.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	msgHeartbeat uint16 = iota
	msgNewOrder
	msgCancelOrder
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the exchange server")
	userID := flag.String("user", "", "user id (compulsory)")
	action := flag.String("action", "place", "action to perform: ['place', 'cancel']")

	market := flag.String("market", "BTC_USD", "market, e.g. BTC_USD")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "order type: 'limit' or 'market'")
	price := flag.String("price", "100.00", "limit price (decimal string)")
	maxQuote := flag.String("max_quote", "", "reserved quote budget for a market buy (decimal string)")
	quantity := flag.String("qty", "10", "quantity (decimal string)")

	orderID := flag.String("order_id", "", "order id to cancel")

	flag.Parse()

	if *userID == "" {
		fmt.Println("error: -user is compulsory")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *userID)

	switch strings.ToLower(*action) {
	case "place":
		buf := encodeNewOrder(*market, *sideStr, *typeStr, *price, *maxQuote, *quantity, *userID)
		if _, err := conn.Write(buf); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s %s %s %s @ %s\n", strings.ToUpper(*sideStr), *typeStr, *quantity, *market, *price)
	case "cancel":
		if *orderID == "" {
			log.Fatal("error: -order_id is required for cancellation")
		}
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("invalid order id: %v", err)
		}
		buf := encodeCancelOrder(id)
		if _, err := conn.Write(buf); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for %s\n", id)
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	readReport(conn)
}

func writeLengthPrefixed(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

func encodeNewOrder(market, side, kind, price, maxQuote, quantity, userID string) []byte {
	var sideByte, kindByte byte
	if strings.ToLower(side) == "sell" {
		sideByte = 1
	}
	effectivePrice := price
	if strings.ToLower(kind) == "market" {
		kindByte = 1
		effectivePrice = ""
	}

	buf := make([]byte, 2, 64)
	binary.BigEndian.PutUint16(buf, msgNewOrder)
	buf = writeLengthPrefixed(buf, market)
	buf = append(buf, sideByte, kindByte)
	buf = writeLengthPrefixed(buf, effectivePrice)
	buf = writeLengthPrefixed(buf, maxQuote)
	buf = writeLengthPrefixed(buf, quantity)
	buf = writeLengthPrefixed(buf, userID)
	return buf
}

func encodeCancelOrder(id uuid.UUID) []byte {
	buf := make([]byte, 2, 18)
	binary.BigEndian.PutUint16(buf, msgCancelOrder)
	idBytes, _ := id.MarshalBinary()
	return append(buf, idBytes...)
}

// readReport reads exactly one Report frame and prints it. The binary
// protocol is request/response per connection, so the client exits
// after the first reply rather than looping like a subscription feed.
func readReport(conn net.Conn) {
	status, err := readByte(conn)
	if err != nil {
		log.Fatalf("connection lost waiting for report: %v", err)
	}
	idBuf := make([]byte, 16)
	if _, err := io.ReadFull(conn, idBuf); err != nil {
		log.Fatalf("failed reading order id: %v", err)
	}
	id, _ := uuid.FromBytes(idBuf)

	errStr, err := readLengthPrefixed(conn)
	if err != nil {
		log.Fatalf("failed reading error string: %v", err)
	}

	countBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, countBuf); err != nil {
		log.Fatalf("failed reading trade count: %v", err)
	}
	count := binary.BigEndian.Uint16(countBuf)

	statusName := map[byte]string{0: "accepted", 1: "rejected", 2: "canceled"}[status]
	fmt.Printf("\n[REPORT] status=%s order_id=%s", statusName, id)
	if errStr != "" {
		fmt.Printf(" error=%q", errStr)
	}
	fmt.Println()

	for i := 0; i < int(count); i++ {
		tradeID, _ := readUUID(conn)
		price, _ := readLengthPrefixed(conn)
		qty, _ := readLengthPrefixed(conn)
		buyer, _ := readUUID(conn)
		seller, _ := readUUID(conn)
		tsBuf := make([]byte, 8)
		io.ReadFull(conn, tsBuf)
		ts := time.Unix(0, int64(binary.BigEndian.Uint64(tsBuf)))
		fmt.Printf("  trade %s price=%s qty=%s buyer=%s seller=%s at=%s\n",
			tradeID, price, qty, buyer, seller, ts.Format(time.RFC3339))
	}
}

func readByte(conn net.Conn) (byte, error) {
	buf := make([]byte, 1)
	_, err := io.ReadFull(conn, buf)
	return buf[0], err
}

func readUUID(conn net.Conn) (uuid.UUID, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return uuid.UUID{}, err
	}
	return uuid.FromBytes(buf)
}

func readLengthPrefixed(conn net.Conn) (string, error) {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf)
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
