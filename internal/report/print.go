package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"quantsim/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	ruleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Money formats v as "$1,234.56".
func Money(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Percent formats v (already scaled to 100) as "12.34%".
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func signed(v float64, s string) string {
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	default:
		return s
	}
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(domain.DateLayout)
}

// Print renders s as a text report titled name.
func Print(w io.Writer, name string, s *Summary) error {
	var b strings.Builder
	rule := ruleStyle.Render(strings.Repeat("#", 72))
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-28s", label+":")), value)
	}

	b.WriteString(rule + "\n")
	b.WriteString(titleStyle.Render(" Report: "+name) + "\n\n")

	line("Simulation Period", fmt.Sprintf("%s days", humanize.Comma(int64(s.Period))))
	line("Starting Value", Money(s.Start.Value))
	line("Ending Value", Money(s.End.Value))
	line("Return", signed(s.Return, fmt.Sprintf("%s (%s)", Money(s.Return), Percent(s.ReturnPct))))
	line("CAGR", signed(s.CAGR, Percent(s.CAGR)))
	line("Maximum Drawdown Duration", fmt.Sprintf("%d days (%s to %s)", s.DrawdownDays, day(s.DrawdownFrom.Date), day(s.DrawdownUntil.Date)))
	line("Maximum Drawdown Amount", fmt.Sprintf("%s (%s)", Money(s.DrawdownAmount), Percent(s.DrawdownPct)))
	line("Initial Position", fmt.Sprintf("%s %s", day(s.Start.Date), Money(s.Start.Value)))
	line("Final Position", fmt.Sprintf("%s %s", day(s.End.Date), Money(s.End.Value)))

	if len(s.Orders) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s %10s %10s %10s  %s", "Date", "Qty", "Price", "Basis", "Order")) + "\n")
		for _, o := range s.Orders {
			fmt.Fprintf(&b, "%-12s %10.2f %10.2f %10.2f  %s\n", day(o.Date), o.Quantity, o.Price, o.Basis, o.Description)
		}
	}

	if t := s.Trades; t.Total > 0 {
		b.WriteString("\n")
		line("Total # of Trades", humanize.Comma(int64(t.Total)))
		line("# of Winning Trades", humanize.Comma(int64(t.Winning)))
		line("# of Losing Trades", humanize.Comma(int64(t.Losing)))
		line("Percent Profitable", Percent(100*t.PercentProfitable()))
		b.WriteString("\n")
		line("Average Trade", signed(t.Average, Money(t.Average)))
		line("Average Winning Trade", Money(t.AverageWin))
		line("Average Losing Trade", Money(t.AverageLoss))
		b.WriteString("\n")
		line("Max. conseq. Winners", fmt.Sprint(t.MaxWinStreak))
		line("Max. conseq. Losers", fmt.Sprint(t.MaxLoseStreak))
		line("Largest Winning Trade", fmt.Sprintf("%s %s", Money(t.LargestWin), day(t.LargestWinDate)))
		line("Largest Losing Trade", fmt.Sprintf("%s %s", Money(t.LargestLoss), day(t.LargestLossDate)))
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}
