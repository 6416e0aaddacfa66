package broker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
	"quantsim/internal/market"
)

// DefaultTradeCost is the fixed fee charged per executed BUY or SELL.
var DefaultTradeCost = decimal.RequireFromString("9.99")

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker fills orders from cached daily quotes. MARKET orders fill
// at the adjusted open, MARKET_ON_CLOSE orders at the adjusted close. Every
// fill pays a fixed fee.
type SimulatorBroker struct {
	market *market.Market
	fee    decimal.Decimal
	log    *slog.Logger
}

// NewSimulatorBroker creates a SimulatorBroker charging fee per trade.
func NewSimulatorBroker(m *market.Market, fee decimal.Decimal) *SimulatorBroker {
	return &SimulatorBroker{
		market: m,
		fee:    fee,
		log:    slog.Default().With("component", "broker"),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Fee returns the per-trade fee.
func (b *SimulatorBroker) Fee() decimal.Decimal { return b.fee }

// Execute fills order against date's quote.
func (b *SimulatorBroker) Execute(ctx context.Context, date time.Time, order domain.Order, pf *domain.Portfolio) (*domain.Fill, error) {
	if order.Side != domain.OrderSideBuy && order.Side != domain.OrderSideSell {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSide, order.Side)
	}

	// Reject before touching the market so unheld symbols are not fetched.
	if order.Side == domain.OrderSideSell {
		if _, ok := pf.Holding(order.Symbol); !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotHeld, order.Symbol)
		}
	}

	price, err := b.strike(ctx, date, order)
	if err != nil {
		return nil, err
	}

	switch order.Side {
	case domain.OrderSideSell:
		return b.sell(date, order, price, pf)
	default:
		return b.buy(date, order, price, pf)
	}
}

// strike selects the execution price for order on date.
func (b *SimulatorBroker) strike(ctx context.Context, date time.Time, order domain.Order) (float64, error) {
	switch order.PriceType {
	case domain.PriceMarket, domain.PriceMarketOnClose:
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedPriceType, order.PriceType)
	}

	q, err := b.market.Ticker(order.Symbol).At(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("quote %s on %s: %w", order.Symbol, date.Format(domain.DateLayout), err)
	}
	if !q.Valid {
		return 0, fmt.Errorf("%w: %s on %s", ErrNoQuote, order.Symbol, date.Format(domain.DateLayout))
	}

	price := q.AdjClose
	if order.PriceType == domain.PriceMarket {
		open, ok := q.AdjOpen()
		if !ok {
			return 0, fmt.Errorf("%w: %s has no open on %s", ErrNoQuote, order.Symbol, date.Format(domain.DateLayout))
		}
		price = open
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s priced %v on %s", ErrNoQuote, order.Symbol, price, date.Format(domain.DateLayout))
	}
	return price, nil
}

func (b *SimulatorBroker) sell(date time.Time, order domain.Order, price float64, pf *domain.Portfolio) (*domain.Fill, error) {
	pos := pf.Position(order.Symbol)

	var qty float64
	switch order.Quantity.Kind {
	case domain.QuantityAll:
		qty = pos.Amount
	case domain.QuantityDollars:
		qty = math.Floor(order.Quantity.Value / price)
	default:
		qty = order.Quantity.Value
	}
	if qty < 1 || qty > pos.Amount {
		return nil, fmt.Errorf("%w: sell %v of %v held %s", ErrInvalidQuantity, qty, pos.Amount, order.Symbol)
	}

	fill := &domain.Fill{
		Date:     domain.Day(date),
		Order:    order,
		Quantity: qty,
		Price:    price,
		Basis:    pos.Basis,
		Fee:      b.fee,
	}
	pos.Remove(qty)
	pf.Cash = pf.Cash.Add(proceeds(qty, price)).Sub(b.fee)

	b.log.Info("sell filled",
		"symbol", order.Symbol,
		"qty", qty,
		"price", price,
		"date", fill.Date.Format(domain.DateLayout),
	)
	return fill, nil
}

func (b *SimulatorBroker) buy(date time.Time, order domain.Order, price float64, pf *domain.Portfolio) (*domain.Fill, error) {
	var qty float64
	switch order.Quantity.Kind {
	case domain.QuantityDollars:
		qty = math.Floor(order.Quantity.Value / price)
	case domain.QuantityShares:
		qty = math.Trunc(order.Quantity.Value)
	default:
		return nil, fmt.Errorf("%w: cannot buy %s", ErrInvalidQuantity, order.Quantity)
	}
	if qty < 1 {
		return nil, fmt.Errorf("%w: buy %s of %s at %.2f is under one share", ErrInvalidQuantity, order.Quantity, order.Symbol, price)
	}

	pos := pf.Position(order.Symbol)
	fill := &domain.Fill{
		Date:     domain.Day(date),
		Order:    order,
		Quantity: qty,
		Price:    price,
		Basis:    pos.Basis,
		Fee:      b.fee,
	}
	pos.Add(qty, price)
	pf.Cash = pf.Cash.Sub(proceeds(qty, price)).Sub(b.fee)

	b.log.Info("buy filled",
		"symbol", order.Symbol,
		"qty", qty,
		"price", price,
		"date", fill.Date.Format(domain.DateLayout),
	)
	return fill, nil
}

func proceeds(qty, price float64) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
}
