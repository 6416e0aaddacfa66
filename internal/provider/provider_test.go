package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantsim/internal/config"
	"quantsim/internal/domain"
)

const historyCSV = `Date,Open,High,Low,Close,Volume,Adj Close
2024-01-03,184.22,185.88,183.43,184.25,58414500,183.50
2024-01-02,187.15,188.44,183.89,185.64,82488700,184.88
2023-12-29,193.90,194.40,191.73,192.53,42628800,191.75
2024-01-04,null,null,null,null,0,null
`

func TestCSVProviderHistory(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, historyCSV)
	}))
	defer srv.Close()

	p := NewCSVProvider(srv.URL+"/history", "", time.Second, 0, 1)
	quotes, err := p.History(context.Background(), "aapl", domain.Date(2024, 1, 1), domain.Date(2024, 1, 5))
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	if want := "end=2024-01-05&start=2024-01-01&symbol=AAPL"; gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	// 2023-12-29 is outside the range and the null row is dropped.
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2: %v", len(quotes), quotes)
	}
	if !quotes[0].Date.Equal(domain.Date(2024, 1, 2)) {
		t.Errorf("quotes[0].Date = %v, want 2024-01-02 (sorted)", quotes[0].Date)
	}
	q := quotes[1]
	if q.Symbol != "AAPL" || q.Open != 184.22 || q.Close != 184.25 || q.AdjClose != 183.50 || q.Volume != 58414500 {
		t.Errorf("quotes[1] = %+v", q)
	}
	if !q.Valid {
		t.Error("parsed quote should be Valid")
	}
}

func TestCSVProviderNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewCSVProvider(srv.URL, "", time.Second, 0, 3)
	_, err := p.History(context.Background(), "ZZZZ", domain.Date(2024, 1, 1), domain.Date(2024, 1, 5))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("History error = %v, want ErrNoData", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (404 is not retried)", got)
	}
}

func TestCSVProviderEmptyAndMalformed(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"empty body", "", ErrNoData},
		{"header only", "Date,Open,High,Low,Close,Volume\n", ErrNoData},
		{"missing columns", "when,price\n2024-01-02,1\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p := NewCSVProvider(srv.URL, "", time.Second, 0, 1)
			_, err := p.History(context.Background(), "AAPL", domain.Date(2024, 1, 1), domain.Date(2024, 1, 5))
			if err == nil {
				t.Fatal("History error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("History error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCSVProviderLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `"AAPL",185.64,"1/2/2024","4:00pm",-6.53,187.15,188.44,183.89,82488700`)
	}))
	defer srv.Close()

	p := NewCSVProvider("", srv.URL, time.Second, 0, 1)
	q, err := p.Latest(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !q.Date.Equal(domain.Date(2024, 1, 2)) {
		t.Errorf("Date = %v, want 2024-01-02", q.Date)
	}
	if q.Close != 185.64 || q.Open != 187.15 || q.High != 188.44 || q.Low != 183.89 || q.Volume != 82488700 {
		t.Errorf("Latest() = %+v", q)
	}
}

func TestCSVProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, historyCSV)
	}))
	defer srv.Close()

	p := NewCSVProvider(srv.URL, "", time.Second, 0, 2)
	quotes, err := p.History(context.Background(), "AAPL", domain.Date(2024, 1, 1), domain.Date(2024, 1, 5))
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(quotes) != 2 || calls.Load() != 2 {
		t.Errorf("got %d quotes after %d calls, want 2 after 2", len(quotes), calls.Load())
	}
}

func TestJoinBars(t *testing.T) {
	// Daily bars are stamped at midnight New York time.
	day := func(d int) time.Time { return time.Date(2024, 1, d, 5, 0, 0, 0, time.UTC) }
	raw := []marketdata.Bar{
		{Timestamp: day(2), Open: 100, High: 110, Low: 95, Close: 105, Volume: 1000},
		{Timestamp: day(3), Open: 106, High: 108, Low: 101, Close: 102, Volume: 2000},
	}
	adj := []marketdata.Bar{
		{Timestamp: day(2), Close: 52.5},
	}

	quotes := joinBars("AAPL", raw, adj)
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	if !quotes[0].Date.Equal(domain.Date(2024, 1, 2)) {
		t.Errorf("quotes[0].Date = %v, want 2024-01-02", quotes[0].Date)
	}
	if quotes[0].AdjClose != 52.5 {
		t.Errorf("quotes[0].AdjClose = %v, want 52.5", quotes[0].AdjClose)
	}
	if quotes[1].AdjClose != 102 {
		t.Errorf("quotes[1].AdjClose = %v, want raw close 102", quotes[1].AdjClose)
	}
	if quotes[1].Volume != 2000 || !quotes[1].Valid {
		t.Errorf("quotes[1] = %+v", quotes[1])
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "alpaca" {
		t.Errorf("Name() = %q, want alpaca", p.Name())
	}

	cfg.Provider.Kind = "csv"
	cfg.Provider.HistoryURL = "http://localhost/history"
	if p, _ = New(cfg); p.Name() != "csv" {
		t.Errorf("Name() = %q, want csv", p.Name())
	}

	cfg.Provider.Kind = "ftp"
	if _, err := New(cfg); err == nil {
		t.Error("New with unknown kind should fail")
	}
}
