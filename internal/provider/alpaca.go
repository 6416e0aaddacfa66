package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantsim/internal/domain"
	"quantsim/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface check
// ---------------------------------------------------------------------------

var _ Provider = (*AlpacaProvider)(nil)

// eastern is the exchange timezone. Alpaca stamps daily bars at midnight ET.
var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("loading %s: %v", name, err))
	}
	return loc
}

// AlpacaProvider serves daily bars from the Alpaca market-data API. Each
// history request fetches the raw bars and the split/dividend adjusted bars
// and joins them by date: the raw bar supplies OHLCV, the adjusted bar
// supplies AdjClose.
type AlpacaProvider struct {
	client  *marketdata.Client
	feed    string
	limiter *util.RateLimiter
	retries int
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// An empty dataURL uses the SDK default endpoint; an empty feed uses "sip".
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string, rateLimitPerMin, maxRetries int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "sip"
	}

	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		feed:    feed,
		limiter: util.NewRateLimiter(rateLimitPerMin),
		retries: maxRetries,
		log:     slog.Default().With("provider", "alpaca"),
	}
}

// Name returns the provider identifier.
func (p *AlpacaProvider) Name() string { return "alpaca" }

// History fetches daily bars for symbol between from and to inclusive.
func (p *AlpacaProvider) History(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, eastern)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, eastern)

	raw, err := p.fetchBars(ctx, symbol, start, end, marketdata.Raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNoData
	}
	adj, err := p.fetchBars(ctx, symbol, start, end, marketdata.All)
	if err != nil {
		return nil, err
	}

	p.log.Debug("fetched bars", "symbol", symbol, "from", from.Format(domain.DateLayout),
		"to", to.Format(domain.DateLayout), "raw", len(raw), "adjusted", len(adj))
	return joinBars(symbol, raw, adj), nil
}

// Latest returns the most recent daily bar for symbol.
func (p *AlpacaProvider) Latest(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	var bar *marketdata.Bar
	err := util.Retry(ctx, p.retries, retryBaseDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		b, err := p.client.GetLatestBar(symbol, marketdata.GetLatestBarRequest{Feed: p.feed})
		if err != nil {
			return err
		}
		bar = b
		return nil
	})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("GetLatestBar %s: %w", symbol, err)
	}
	if bar == nil {
		return domain.Quote{}, ErrNoData
	}
	q := barToQuote(symbol, *bar)
	q.AdjClose = q.Close
	return q, nil
}

func (p *AlpacaProvider) fetchBars(ctx context.Context, symbol string, start, end time.Time, adj marketdata.Adjustment) ([]marketdata.Bar, error) {
	var bars []marketdata.Bar
	err := util.Retry(ctx, p.retries, retryBaseDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		b, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Adjustment: adj,
			Start:      start,
			End:        end,
			Feed:       p.feed,
		})
		if err != nil {
			return err
		}
		bars = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s (%s): %w", symbol, adj, err)
	}
	return bars, nil
}

// barToQuote converts an Alpaca bar to a quote dated by its ET calendar day.
func barToQuote(symbol string, b marketdata.Bar) domain.Quote {
	return domain.Quote{
		Symbol: symbol,
		Date:   domain.Day(b.Timestamp.In(eastern)),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: int64(b.Volume),
		Valid:  true,
	}
}

// joinBars merges raw and adjusted bars by date. A raw bar without an
// adjusted counterpart keeps its own close as AdjClose.
func joinBars(symbol string, raw, adj []marketdata.Bar) []domain.Quote {
	adjClose := make(map[time.Time]float64, len(adj))
	for _, b := range adj {
		adjClose[domain.Day(b.Timestamp.In(eastern))] = b.Close
	}

	quotes := make([]domain.Quote, 0, len(raw))
	for _, b := range raw {
		q := barToQuote(symbol, b)
		if c, ok := adjClose[q.Date]; ok {
			q.AdjClose = c
		} else {
			q.AdjClose = q.Close
		}
		quotes = append(quotes, q)
	}
	return quotes
}
