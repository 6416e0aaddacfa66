package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy   OrderSide = "BUY"
	OrderSideSell  OrderSide = "SELL"
	OrderSideShort OrderSide = "SHORT" // reserved
	OrderSideCover OrderSide = "COVER" // reserved
)

// PriceType selects which price of the execution bar an order fills at.
type PriceType string

const (
	// PriceMarket fills at the next trading day's open.
	PriceMarket PriceType = "MARKET"
	// PriceMarketOnClose fills at the next trading day's close.
	PriceMarketOnClose PriceType = "MARKET_ON_CLOSE"
	PriceLimit         PriceType = "LIMIT"      // reserved
	PriceStop          PriceType = "STOP"       // reserved
	PriceStopLimit     PriceType = "STOP_LIMIT" // reserved
)

// QuantityKind distinguishes how an order's size is expressed.
type QuantityKind int

const (
	// QuantityShares is an explicit share count.
	QuantityShares QuantityKind = iota
	// QuantityDollars is a cash amount, resolved to whole shares at execution.
	QuantityDollars
	// QuantityAll means the full current holding.
	QuantityAll
)

// Quantity is the size of an order.
type Quantity struct {
	Kind  QuantityKind
	Value float64
}

// Shares returns an explicit share-count quantity.
func Shares(n float64) Quantity { return Quantity{Kind: QuantityShares, Value: n} }

// Dollars returns a cash-denominated quantity.
func Dollars(amount float64) Quantity { return Quantity{Kind: QuantityDollars, Value: amount} }

// All returns the full-holding sentinel quantity.
func All() Quantity { return Quantity{Kind: QuantityAll} }

// ParseQuantity parses "100", "$5000" or "ALL".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "ALL"):
		return All(), nil
	case strings.HasPrefix(s, "$"):
		v, err := strconv.ParseFloat(strings.TrimSpace(s[1:]), 64)
		if err != nil {
			return Quantity{}, fmt.Errorf("parsing dollar quantity %q: %w", s, err)
		}
		return Dollars(v), nil
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Quantity{}, fmt.Errorf("parsing share quantity %q: %w", s, err)
		}
		return Shares(v), nil
	}
}

func (q Quantity) String() string {
	switch q.Kind {
	case QuantityAll:
		return "ALL"
	case QuantityDollars:
		return fmt.Sprintf("$%.2f", q.Value)
	default:
		if q.Value == math.Trunc(q.Value) {
			return strconv.FormatFloat(q.Value, 'f', 0, 64)
		}
		return strconv.FormatFloat(q.Value, 'f', -1, 64)
	}
}

// Order is a transient instruction produced by a strategy and consumed by the
// engine on the following trading day.
type Order struct {
	ID        string
	Side      OrderSide
	Symbol    string
	Quantity  Quantity
	PriceType PriceType
	Stop      float64
	Limit     float64
}

// NewOrder builds an order with the given side, symbol, quantity and price type.
func NewOrder(side OrderSide, symbol string, qty Quantity, pt PriceType) Order {
	return Order{
		Side:      side,
		Symbol:    NormalizeSymbol(symbol),
		Quantity:  qty,
		PriceType: pt,
	}
}

func (o Order) String() string {
	s := fmt.Sprintf("%s %s %s at %s", o.Side, o.Quantity, o.Symbol, o.PriceType)
	switch o.PriceType {
	case PriceLimit:
		s += fmt.Sprintf(" %.2f", o.Limit)
	case PriceStop:
		s += fmt.Sprintf(" %.2f", o.Stop)
	case PriceStopLimit:
		s += fmt.Sprintf(" %.2f when %.2f", o.Limit, o.Stop)
	}
	return s
}
