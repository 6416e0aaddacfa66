package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"quantsim/internal/domain"
)

var (
	_ Ledger = (*CSVLedger)(nil)
	_ Reader = (*CSVReader)(nil)
)

// Table file names and headers.
var (
	ordersHeader      = []string{"id", "date", "type", "symbol", "quantity", "price", "basis", "fee", "description"}
	positionHeader    = []string{"date", "symbol", "amount", "basis", "price", "value"}
	performanceHeader = []string{"date", "value"}
	indicatorsHeader  = []string{"date", "symbol", "name", "value"}
)

const (
	ordersFile      = "orders.csv"
	positionFile    = "position.csv"
	performanceFile = "performance.csv"
	indicatorsFile  = "indicators.csv"
	runFile         = "run.yaml"
)

// csvPath maps a table file name onto the ledger location: inside the
// directory, or next to "out.csv" as "out_orders.csv".
func csvPath(base, name string) string {
	if strings.HasSuffix(strings.ToLower(base), ".csv") {
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		return stem + "_" + name
	}
	return filepath.Join(base, name)
}

// runRecord is the YAML form of domain.RunInfo.
type runRecord struct {
	ID        string    `yaml:"id"`
	Strategy  string    `yaml:"strategy"`
	Portfolio string    `yaml:"portfolio"`
	Params    string    `yaml:"params"`
	Start     string    `yaml:"start"`
	End       string    `yaml:"end"`
	CreatedAt time.Time `yaml:"created_at"`
}

type csvTable struct {
	f *os.File
	w *csv.Writer
}

// CSVLedger writes run output as one CSV file per table.
type CSVLedger struct {
	base        string
	orders      csvTable
	position    csvTable
	performance csvTable
	indicators  csvTable
}

// NewCSVLedger truncates (or creates) the CSV files for base.
func NewCSVLedger(base string) (*CSVLedger, error) {
	dir := base
	if strings.HasSuffix(strings.ToLower(base), ".csv") {
		dir = filepath.Dir(base)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}

	l := &CSVLedger{base: base}
	tables := []struct {
		t      *csvTable
		name   string
		header []string
	}{
		{&l.orders, ordersFile, ordersHeader},
		{&l.position, positionFile, positionHeader},
		{&l.performance, performanceFile, performanceHeader},
		{&l.indicators, indicatorsFile, indicatorsHeader},
	}
	for _, tb := range tables {
		f, err := os.Create(csvPath(base, tb.name))
		if err != nil {
			l.Close()
			return nil, err
		}
		tb.t.f = f
		tb.t.w = csv.NewWriter(f)
		if err := tb.t.w.Write(tb.header); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}

// Begin writes the run description next to the tables.
func (l *CSVLedger) Begin(_ context.Context, run domain.RunInfo) error {
	data, err := yaml.Marshal(runRecord{
		ID:        run.ID,
		Strategy:  run.Strategy,
		Portfolio: run.Portfolio,
		Params:    run.Params,
		Start:     run.Start.Format(domain.DateLayout),
		End:       run.End.Format(domain.DateLayout),
		CreatedAt: run.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(csvPath(l.base, runFile), data, 0o644)
}

// RecordOrder appends an executed order.
func (l *CSVLedger) RecordOrder(_ context.Context, r domain.OrderRow) error {
	return l.orders.w.Write([]string{
		r.ID,
		r.Date.Format(domain.DateLayout),
		string(r.Type),
		r.Symbol,
		f(r.Quantity),
		f(r.Price),
		f(r.Basis),
		r.Fee.String(),
		r.Description,
	})
}

// RecordPosition appends a holding snapshot.
func (l *CSVLedger) RecordPosition(_ context.Context, r domain.PositionRow) error {
	return l.position.w.Write([]string{
		r.Date.Format(domain.DateLayout),
		r.Symbol,
		f(r.Amount),
		f(r.Basis),
		f(r.Price),
		r.Value.String(),
	})
}

// RecordPerformance appends the day's value.
func (l *CSVLedger) RecordPerformance(_ context.Context, r domain.PerformanceRow) error {
	return l.performance.w.Write([]string{r.Date.Format(domain.DateLayout), r.Value.String()})
}

// RecordIndicator appends one indicator output.
func (l *CSVLedger) RecordIndicator(_ context.Context, r domain.IndicatorRow) error {
	return l.indicators.w.Write([]string{r.Date.Format(domain.DateLayout), r.Symbol, r.Name, f(r.Value)})
}

// Flush writes buffered rows through to the files.
func (l *CSVLedger) Flush(_ context.Context) error {
	var errs []error
	for _, t := range []*csvTable{&l.orders, &l.position, &l.performance, &l.indicators} {
		if t.w == nil {
			continue
		}
		t.w.Flush()
		if err := t.w.Error(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every file.
func (l *CSVLedger) Close() error {
	errs := []error{l.Flush(context.Background())}
	for _, t := range []*csvTable{&l.orders, &l.position, &l.performance, &l.indicators} {
		if t.f != nil {
			errs = append(errs, t.f.Close())
		}
	}
	return errors.Join(errs...)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// CSVReader reads a ledger written by CSVLedger.
type CSVReader struct {
	base string
}

// NewCSVReader checks that the orders table exists at base.
func NewCSVReader(base string) (*CSVReader, error) {
	if _, err := os.Stat(csvPath(base, ordersFile)); err != nil {
		return nil, err
	}
	return &CSVReader{base: base}, nil
}

// Close is a no-op; files are opened per read.
func (r *CSVReader) Close() error { return nil }

// readTable returns the data records of a table, checking the header.
func (r *CSVReader) readTable(name string, header []string) ([][]string, error) {
	fh, err := os.Open(csvPath(r.base, name))
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	cr := csv.NewReader(fh)
	cr.FieldsPerRecord = len(header)
	got, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", name)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if strings.Join(got, ",") != strings.Join(header, ",") {
		return nil, fmt.Errorf("%s: unexpected header %v", name, got)
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return records, nil
}

// Run reads run.yaml.
func (r *CSVReader) Run(_ context.Context) (domain.RunInfo, error) {
	data, err := os.ReadFile(csvPath(r.base, runFile))
	if err != nil {
		return domain.RunInfo{}, err
	}
	var rec runRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return domain.RunInfo{}, fmt.Errorf("parsing %s: %w", runFile, err)
	}
	run := domain.RunInfo{
		ID:        rec.ID,
		Strategy:  rec.Strategy,
		Portfolio: rec.Portfolio,
		Params:    rec.Params,
		CreatedAt: rec.CreatedAt,
	}
	if run.Start, err = domain.ParseDay(rec.Start); err != nil {
		return run, err
	}
	if run.End, err = domain.ParseDay(rec.End); err != nil {
		return run, err
	}
	return run, nil
}

// Orders parses orders.csv.
func (r *CSVReader) Orders(_ context.Context) ([]domain.OrderRow, error) {
	records, err := r.readTable(ordersFile, ordersHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderRow, 0, len(records))
	for i, rec := range records {
		var p fieldParser
		o := domain.OrderRow{
			ID:          rec[0],
			Date:        p.day(rec[1]),
			Type:        domain.OrderSide(rec[2]),
			Symbol:      rec[3],
			Quantity:    p.float(rec[4]),
			Price:       p.float(rec[5]),
			Basis:       p.float(rec[6]),
			Fee:         p.decimal(rec[7]),
			Description: rec[8],
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", ordersFile, i+2, p.err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Positions parses position.csv.
func (r *CSVReader) Positions(_ context.Context) ([]domain.PositionRow, error) {
	records, err := r.readTable(positionFile, positionHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PositionRow, 0, len(records))
	for i, rec := range records {
		var p fieldParser
		row := domain.PositionRow{
			Date:   p.day(rec[0]),
			Symbol: rec[1],
			Amount: p.float(rec[2]),
			Basis:  p.float(rec[3]),
			Price:  p.float(rec[4]),
			Value:  p.decimal(rec[5]),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", positionFile, i+2, p.err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Performance parses performance.csv.
func (r *CSVReader) Performance(_ context.Context) ([]domain.PerformanceRow, error) {
	records, err := r.readTable(performanceFile, performanceHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PerformanceRow, 0, len(records))
	for i, rec := range records {
		var p fieldParser
		row := domain.PerformanceRow{Date: p.day(rec[0]), Value: p.decimal(rec[1])}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", performanceFile, i+2, p.err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Indicators parses indicators.csv.
func (r *CSVReader) Indicators(_ context.Context) ([]domain.IndicatorRow, error) {
	records, err := r.readTable(indicatorsFile, indicatorsHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IndicatorRow, 0, len(records))
	for i, rec := range records {
		var p fieldParser
		row := domain.IndicatorRow{Date: p.day(rec[0]), Symbol: rec[1], Name: rec[2], Value: p.float(rec[3])}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", indicatorsFile, i+2, p.err)
		}
		out = append(out, row)
	}
	return out, nil
}

// fieldParser keeps the first parse error so a row can be decoded in one
// expression.
type fieldParser struct{ err error }

func (p *fieldParser) day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *fieldParser) float(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *fieldParser) decimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}
