package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quantsim/internal/config"
	"quantsim/internal/domain"
)

func TestParseDay(t *testing.T) {
	got, err := parseDay("2024-02-29")
	if err != nil || !got.Equal(domain.Date(2024, 2, 29)) {
		t.Errorf("parseDay(2024-02-29) = %v, %v", got, err)
	}
	if got, err := parseDay(""); err != nil || !got.IsZero() {
		t.Errorf("parseDay(\"\") = %v, %v, want zero time", got, err)
	}
	if got, _ := parseDay("today"); !got.Equal(domain.Day(time.Now())) {
		t.Errorf("parseDay(today) = %v", got)
	}
	if _, err := parseDay("02/29/2024"); err == nil {
		t.Error("parseDay should reject 02/29/2024")
	}
}

func TestParseHoldings(t *testing.T) {
	got, err := parseHoldings([]string{"aapl=$5000", " msft =10"})
	if err != nil {
		t.Fatalf("parseHoldings: %v", err)
	}
	if got["AAPL"] != "$5000" || got["MSFT"] != "10" || len(got) != 2 {
		t.Errorf("parseHoldings = %v", got)
	}

	for _, bad := range []string{"AAPL", "=10", "$=10", "AAPL=all", "AAPL=$x"} {
		if _, err := parseHoldings([]string{bad}); err == nil {
			t.Errorf("parseHoldings(%q) should fail", bad)
		}
	}
}

func TestFormatAllocation(t *testing.T) {
	got := formatAllocation(domain.Allocation{"MSFT": "10", "$": "2000", "AAPL": "$500"})
	if want := "cash $2000, AAPL $500, MSFT 10"; got != want {
		t.Errorf("formatAllocation = %q, want %q", got, want)
	}
}

// run executes the CLI with a config file under a temp directory.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"QUANTSIM_CONFIG", "ALPACA_API_KEY", "APCA_API_KEY_ID", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPortfolioCommands(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "quantsim.yaml")

	if _, err := run(t, cfgPath, "portfolio", "create", "growth", "$2000", "nvda=$1000", "AMD=5"); err != nil {
		t.Fatalf("portfolio create: %v", err)
	}
	if _, err := run(t, cfgPath, "portfolio", "create", "growth", "1"); err == nil {
		t.Error("creating an existing portfolio should fail")
	}

	out, err := run(t, cfgPath, "portfolio", "list")
	if err != nil {
		t.Fatalf("portfolio list: %v", err)
	}
	for _, want := range []string{"cash: cash $10000", "growth: cash $2000, AMD 5, NVDA $1000"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if alloc, err := cfg.Portfolio("growth"); err != nil || alloc["NVDA"] != "$1000" {
		t.Errorf("saved growth portfolio = %v, %v", alloc, err)
	}

	if _, err := run(t, cfgPath, "portfolio", "delete", "growth"); err != nil {
		t.Fatalf("portfolio delete: %v", err)
	}
	if _, err := run(t, cfgPath, "portfolio", "delete", "growth"); err == nil {
		t.Error("deleting an unknown portfolio should fail")
	}
}

func TestStrategiesAndVersion(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "quantsim.yaml")
	out, err := run(t, cfgPath, "strategies")
	if err != nil {
		t.Fatalf("strategies: %v", err)
	}
	if want := "hold\nsell\nsma-cross\ntrending\n"; out != want {
		t.Errorf("strategies = %q, want %q", out, want)
	}

	out, err = run(t, cfgPath, "version")
	if err != nil || !strings.HasPrefix(out, "quantsim ") {
		t.Errorf("version = %q, %v", out, err)
	}
}
