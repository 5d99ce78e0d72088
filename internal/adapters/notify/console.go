// Package notify imprime el resultado de cada ciclo por consola.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

var _ ports.Notifier = (*Console)(nil)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el estado de los trackers en el modo configurado.
func (c *Console) Notify(_ context.Context, profileID string, trackers []domain.TrackerState, m domain.PortfolioMetrics) error {
	if len(trackers) == 0 {
		fmt.Fprintf(c.out, "[%s] %s: no trackers\n", time.Now().Format("15:04:05"), profileID)
		return nil
	}
	if c.table {
		c.printFull(profileID, trackers, m)
		return nil
	}
	c.printCompact(profileID, trackers, m)
	return nil
}

// printCompact imprime una línea por ciclo con las acciones que no son HOLD.
func (c *Console) printCompact(profileID string, trackers []domain.TrackerState, m domain.PortfolioMetrics) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s → %d trk open:%d P/L:$%.2f bank:$%.2f",
		time.Now().Format("15:04:05"), profileID, len(trackers), m.OpenPositions, m.TotalPL, m.BankBalance)

	for _, t := range trackers {
		if t.Recommendation.Action == domain.ActionHold || t.Recommendation.Action == domain.ActionNone {
			continue
		}
		fmt.Fprintf(&sb, " | %s %s@%s", t.Symbol, t.Recommendation.Action, fmtPrice(t.CurrentPrice))
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printFull(profileID string, trackers []domain.TrackerState, m domain.PortfolioMetrics) {
	fmt.Fprintf(c.out, "\n[%s] %s: %d trackers\n", time.Now().Format("15:04:05"), profileID, len(trackers))

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Price", "Held", "Avg buy", "Open", "P/L%", "Stop", "Limit", "Action", "Reason")
	for _, t := range trackers {
		stop, limit := "-", "-"
		if idx := domain.LowestOpen(t.Positions); idx >= 0 {
			stop = fmtPct(t.Positions[idx].Stop)
			limit = fmtPct(t.Positions[idx].Limit)
		}
		table.Append(
			t.Symbol,
			fmtPrice(t.CurrentPrice),
			fmt.Sprintf("%.8g", t.Held),
			fmtPrice(t.AverageBuyPrice),
			fmt.Sprintf("%d", domain.OpenCount(t.Positions)),
			fmt.Sprintf("%.2f%%", t.PercentageChange),
			stop,
			limit,
			string(t.Recommendation.Action),
			truncate(t.Recommendation.Reason, 48),
		)
	}
	table.Render()
	c.printMetrics(m)
}

func (c *Console) printMetrics(m domain.PortfolioMetrics) {
	fmt.Fprintf(c.out, "\n=== PORTFOLIO ===\n")
	fmt.Fprintf(c.out, "  Positions:  %d open, %d closed (W:%d L:%d)\n",
		m.OpenPositions, m.ClosedPositions, m.WinCount, m.LossCount)
	fmt.Fprintf(c.out, "  Invested:   $%.2f  value $%.2f\n", m.TotalInvested, m.CurrentValue)
	fmt.Fprintf(c.out, "  P/L:        realized $%.2f  unrealized $%.2f  total $%.2f  ROI %.2f%%\n",
		m.RealizedPL, m.UnrealizedPL, m.TotalPL, m.ROIPercentage)
	fmt.Fprintf(c.out, "  Bank:       $%.2f\n\n", m.BankBalance)
}

// PrintLedger imprime el historial de transacciones del banco.
func (c *Console) PrintLedger(profileID string, entries []domain.LedgerEntry) {
	fmt.Fprintf(c.out, "\n=== LEDGER %s (%d entries) ===\n", profileID, len(entries))
	if len(entries) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Amount", "Balance", "Symbol", "Description")
	for _, e := range entries {
		table.Append(
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%+.2f", e.Amount),
			fmt.Sprintf("%.2f", e.Balance),
			e.Symbol,
			truncate(e.Description, 60),
		)
	}
	table.Render()
}

// PrintCycles imprime los últimos ciclos registrados.
func (c *Console) PrintCycles(profileID string, cycles []domain.CycleSummary) {
	fmt.Fprintf(c.out, "\n=== CYCLES %s ===\n", profileID)
	if len(cycles) == 0 {
		fmt.Fprintln(c.out, "  no cycles recorded")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Ran at", "Took", "Trackers", "Trades", "Failures", "Bank", "Total P/L")
	for _, cy := range cycles {
		table.Append(
			cy.RanAt.Local().Format("2006-01-02 15:04:05"),
			cy.Duration.Round(time.Millisecond).String(),
			fmt.Sprintf("%d", cy.Trackers),
			fmt.Sprintf("%d", cy.Trades),
			fmt.Sprintf("%d", cy.Failures),
			fmt.Sprintf("$%.2f", cy.Balance),
			fmt.Sprintf("$%.2f", cy.TotalPL),
		)
	}
	table.Render()
}

func fmtPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// fmtPrice muestra 8 cifras significativas: sirve igual para BTC que para DOGE.
func fmtPrice(p float64) string {
	return fmt.Sprintf("%.8g", p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
