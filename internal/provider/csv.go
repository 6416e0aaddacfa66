package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/util"
)

var _ Provider = (*CSVProvider)(nil)

// CSVProvider reads quotes from an HTTP endpoint that serves delimited
// OHLCV rows. The history endpoint takes symbol, start and end query
// parameters (YYYY-MM-DD) and answers with a header row followed by one row
// per trading day. Recognised headers (case-insensitive): date, open, high,
// low, close, volume, adj close. The quote endpoint takes a symbol parameter
// and answers with a single line:
//
//	symbol,last,M/D/YYYY,time,change,open,high,low,volume
type CSVProvider struct {
	historyURL string
	quoteURL   string
	client     *http.Client
	limiter    *util.RateLimiter
	retries    int
	log        *slog.Logger
}

// NewCSVProvider creates a CSVProvider. A zero timeout defaults to 30s.
func NewCSVProvider(historyURL, quoteURL string, timeout time.Duration, rateLimitPerMin, maxRetries int) *CSVProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CSVProvider{
		historyURL: historyURL,
		quoteURL:   quoteURL,
		client:     &http.Client{Timeout: timeout},
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		retries:    maxRetries,
		log:        slog.Default().With("provider", "csv"),
	}
}

// Name returns the provider identifier.
func (p *CSVProvider) Name() string { return "csv" }

// History fetches and parses the delimited history for symbol.
func (p *CSVProvider) History(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("start", from.Format(domain.DateLayout))
	q.Set("end", to.Format(domain.DateLayout))

	body, err := p.get(ctx, p.historyURL, q)
	if err != nil {
		return nil, err
	}
	quotes, err := parseHistory(symbol, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing history for %s: %w", symbol, err)
	}

	// Some sources ignore the range; keep only what was asked for.
	lo, hi := domain.Day(from), domain.Day(to)
	kept := quotes[:0]
	for _, qt := range quotes {
		if qt.Date.Before(lo) || qt.Date.After(hi) {
			continue
		}
		kept = append(kept, qt)
	}
	if len(kept) == 0 {
		return nil, ErrNoData
	}
	return kept, nil
}

// Latest fetches the current quote line for symbol.
func (p *CSVProvider) Latest(ctx context.Context, symbol string) (domain.Quote, error) {
	if p.quoteURL == "" {
		return domain.Quote{}, errors.New("csv provider: no quote_url configured")
	}
	symbol = domain.NormalizeSymbol(symbol)
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := p.get(ctx, p.quoteURL, q)
	if err != nil {
		return domain.Quote{}, err
	}
	return parseQuoteLine(symbol, body)
}

// get performs a rate-limited GET with retries. 404 maps to ErrNoData; other
// 4xx responses are not retried.
func (p *CSVProvider) get(ctx context.Context, base string, q url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", base, err)
	}
	u.RawQuery = q.Encode()

	var body string
	err = util.Retry(ctx, p.retries, retryBaseDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("User-Agent", "quantsim")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return util.Permanent(ErrNoData)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return util.Permanent(fmt.Errorf("GET %s: status %d", u.Path, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("GET %s: status %d", u.Path, resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	p.log.Debug("fetched", "url", u.Path, "query", u.RawQuery, "bytes", len(body))
	return body, nil
}

// parseHistory decodes a header-led CSV history into quotes ordered by date.
// Rows with an unparseable date are skipped; rows with missing prices are
// skipped as well.
func parseHistory(symbol string, r io.Reader) ([]domain.Quote, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q in header %v", required, header)
		}
	}

	field := func(rec []string, name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	price := func(rec []string, name string) (float64, bool) {
		s, ok := field(rec, name)
		if !ok || s == "" || s == "null" || s == "-" {
			return 0, false
		}
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}

	var quotes []domain.Quote
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ds, _ := field(rec, "date")
		date, err := parseDate(ds)
		if err != nil {
			continue
		}
		q := domain.Quote{Symbol: symbol, Date: date, Valid: true}
		var ok1, ok2, ok3, ok4 bool
		q.Open, ok1 = price(rec, "open")
		q.High, ok2 = price(rec, "high")
		q.Low, ok3 = price(rec, "low")
		q.Close, ok4 = price(rec, "close")
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		if v, ok := price(rec, "volume"); ok {
			q.Volume = int64(v)
		}
		if v, ok := price(rec, "adj close"); ok {
			q.AdjClose = v
		} else if v, ok := price(rec, "adj_close"); ok {
			q.AdjClose = v
		} else {
			q.AdjClose = q.Close
		}
		quotes = append(quotes, q)
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Date.Before(quotes[j].Date) })
	return quotes, nil
}

// parseQuoteLine decodes "symbol,last,M/D/YYYY,time,change,open,high,low,volume".
func parseQuoteLine(symbol, body string) (domain.Quote, error) {
	cr := csv.NewReader(strings.NewReader(strings.TrimSpace(body)))
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing quote for %s: %w", symbol, err)
	}
	if len(rec) < 9 {
		return domain.Quote{}, fmt.Errorf("parsing quote for %s: want 9 fields, got %d", symbol, len(rec))
	}

	nums := make([]float64, 0, 5)
	for _, i := range []int{1, 5, 6, 7, 8} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("parsing quote for %s: field %d: %w", symbol, i, err)
		}
		nums = append(nums, v)
	}
	date, err := parseDate(rec[2])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing quote for %s: %w", symbol, err)
	}

	return domain.Quote{
		Symbol:   symbol,
		Date:     date,
		Close:    nums[0],
		Open:     nums[1],
		High:     nums[2],
		Low:      nums[3],
		Volume:   int64(nums[4]),
		AdjClose: nums[0],
		Valid:    true,
	}, nil
}

// parseDate accepts YYYY-MM-DD, M/D/YYYY and D-Mon-YY.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{domain.DateLayout, "1/2/2006", "2-Jan-06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
