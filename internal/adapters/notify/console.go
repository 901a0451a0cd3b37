package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/ports"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implementa ports.Reporter.
type Console struct {
	out   io.Writer
	table bool
}

var _ ports.Reporter = (*Console)(nil)

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PrintSummary imprime el dashboard en el modo configurado.
func (c *Console) PrintSummary(_ context.Context, sum domain.Summary) error {
	if sum.Sets == 0 && len(sum.Faults) == 0 {
		fmt.Fprintf(c.out, "No bet sets found%s\n", filterLabel(sum.Filter))
		return nil
	}
	if !c.table {
		c.printCompact(sum)
		return nil
	}

	fmt.Fprintf(c.out, "\n=== SUREBET DASHBOARD%s ===\n", filterLabel(sum.Filter))
	fmt.Fprintf(c.out, "  Sets: %d (resolved %d, pending %d)\n", sum.Sets, sum.Resolved, sum.Pending)
	fmt.Fprintf(c.out, "  Staked: %s  (resolved %s)\n", money(sum.Staked), money(sum.ResolvedStaked))
	fmt.Fprintf(c.out, "  ─────────────────────────────────────────────\n")
	fmt.Fprintf(c.out, "  Actual profit:    %s\n", money(sum.ActualProfit))
	fmt.Fprintf(c.out, "  Potential profit: %s (pending, leg A)\n", money(sum.PotentialProfit))
	fmt.Fprintf(c.out, "  ROI:              %s%%\n", sum.ROIPct.StringFixed(2))

	if len(sum.ByDay) > 0 {
		fmt.Fprintf(c.out, "\n--- by day ---\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Date", "Resolved", "Pending", "Actual", "Potential")
		for _, d := range sum.ByDay {
			tbl.Append(
				d.Date.Format("2006-01-02"),
				fmt.Sprintf("%d", d.Resolved),
				fmt.Sprintf("%d", d.Pending),
				money(d.ActualProfit),
				money(d.PotentialProfit),
			)
		}
		tbl.Render()
	}

	if len(sum.ByBookmaker) > 0 {
		fmt.Fprintf(c.out, "\n--- by bookmaker ---\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Bookmaker", "Legs", "Staked", "Won", "Lost", "Returned")
		for _, b := range sum.ByBookmaker {
			tbl.Append(
				truncate(b.Bookmaker, 20),
				fmt.Sprintf("%d", b.Legs),
				money(b.Staked),
				fmt.Sprintf("%d", b.Won),
				fmt.Sprintf("%d", b.Lost),
				fmt.Sprintf("%d", b.Returned),
			)
		}
		tbl.Render()
	}

	c.printFaults(sum.Faults)

	switch {
	case sum.Resolved == 0:
		fmt.Fprintf(c.out, "\n  Sin sets resueltos todavía.\n\n")
	case sum.ActualProfit.IsPositive():
		fmt.Fprintf(c.out, "\n  POSITIVE: %s over %d resolved sets.\n\n", money(sum.ActualProfit), sum.Resolved)
	default:
		fmt.Fprintf(c.out, "\n  NEGATIVE: %s over %d resolved sets.\n\n", money(sum.ActualProfit), sum.Resolved)
	}
	return nil
}

// PrintSets lista los sets con sus dos patas.
func (c *Console) PrintSets(sets []domain.BetSet) {
	if len(sets) == 0 {
		fmt.Fprintln(c.out, "No bet sets found")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Date", "Event", "Leg", "Bookmaker", "Stake", "Odd", "Outcome", "Potential", "Actual")
	for _, s := range sets {
		if err := s.CheckIntegrity(); err != nil {
			tbl.Append(s.EventDate.Format("2006-01-02"), truncate(s.Event, 30), "-", "corrupt", "", "", "", "", "")
			continue
		}
		a, b := s.Pair()
		for i, l := range []domain.BetLeg{a, b} {
			date, event := "", ""
			if i == 0 {
				date, event = s.EventDate.Format("2006-01-02"), truncate(s.Event, 30)
			}
			actual := "-"
			if l.ActualProfit.Valid {
				actual = money(l.ActualProfit.Decimal)
			}
			tbl.Append(
				date, event, string(rune('A'+i)),
				truncate(l.Bookmaker, 16),
				money(l.Stake),
				l.Odd.String(),
				l.Outcome.String(),
				money(l.PotentialProfit),
				actual,
			)
		}
	}
	tbl.Render()
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(sum domain.Summary) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d sets → R:%d P:%d actual %s potential %s roi %s%%",
		sum.Sets, sum.Resolved, sum.Pending,
		money(sum.ActualProfit), money(sum.PotentialProfit), sum.ROIPct.StringFixed(2))
	if n := len(sum.Faults); n > 0 {
		fmt.Fprintf(&sb, " | skipped:%d", n)
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printFaults(faults []domain.RecordFault) {
	if len(faults) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n  ⚠ %d set(s) skipped:\n", len(faults))
	for _, f := range faults {
		fmt.Fprintf(c.out, "     %s [%s] %v\n", f.SetID, domain.Kind(f.Err), f.Err)
	}
}

func filterLabel(f domain.SetFilter) string {
	var parts []string
	if f.From != nil {
		parts = append(parts, "from "+f.From.Format("2006-01-02"))
	}
	if f.To != nil {
		parts = append(parts, "to "+f.To.Format("2006-01-02"))
	}
	if f.Bookmaker != "" {
		parts = append(parts, "bookmaker "+f.Bookmaker)
	}
	if f.Status != "" {
		parts = append(parts, string(f.Status))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func truncate(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
