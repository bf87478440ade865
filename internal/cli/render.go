package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/allocator"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
	"github.com/simaogato/wealthflow-planner/internal/usecase/rebalancer"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

var (
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorDim    = lipgloss.Color("#928374")
	colorHeader = lipgloss.Color("#fe8019")

	styleGreen  = lipgloss.NewStyle().Foreground(colorGreen)
	styleYellow = lipgloss.NewStyle().Foreground(colorYellow)
	styleRed    = lipgloss.NewStyle().Foreground(colorRed)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleHeader = lipgloss.NewStyle().Foreground(colorHeader).Bold(true)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleDim).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			return styleCell
		})
}

func flags(b domain.AllocationBucket) string {
	var out []string
	if !b.IsModifiable {
		out = append(out, "fixed")
	}
	if b.IsLocked {
		out = append(out, "locked")
	}
	if !b.Acknowledged {
		out = append(out, "adjusted")
	}
	return strings.Join(out, ",")
}

func signed(d decimal.Decimal) string {
	if d.IsZero() {
		return "-"
	}
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

// renderBuckets draws the bucket table with a total row
func renderBuckets(income decimal.Decimal, buckets []domain.AllocationBucket) string {
	t := newTable("Bucket", "Type", "Amount", "% Income", "Change", "Flags")
	for _, b := range buckets {
		t.Row(
			b.Name,
			string(b.Type),
			b.AllocatedAmount.StringFixed(2),
			b.PercentageOfIncome(income).StringFixed(1)+"%",
			signed(b.ChangeFromOriginal),
			flags(b),
		)
	}
	total := domain.TotalAllocated(buckets)
	t.Row("Total", "", total.StringFixed(2), domain.PercentOf(total, income).StringFixed(1)+"%", "", "")
	return t.String()
}

func statusStyle(s validation.DiscretionaryStatus) lipgloss.Style {
	switch s {
	case validation.DiscretionaryHardLimit:
		return styleRed
	case validation.DiscretionaryWarning:
		return styleYellow
	default:
		return styleGreen
	}
}

// renderReport summarizes validation in a few lines
func renderReport(r validation.Report) string {
	var b strings.Builder
	if r.Valid {
		b.WriteString(styleGreen.Render("✓ plan is valid"))
	} else {
		b.WriteString(styleRed.Render("✗ plan cannot be confirmed"))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  allocated: %s%% of income\n", r.SumPercent.StringFixed(1))
	fmt.Fprintf(&b, "  discretionary: %s%% %s\n",
		r.DiscretionaryPercent.StringFixed(1),
		statusStyle(r.DiscretionaryStatus).Render(string(r.DiscretionaryStatus)))
	for _, msg := range r.Messages {
		fmt.Fprintf(&b, "  %s %s\n", styleYellow.Render("!"), msg)
	}
	return b.String()
}

// renderUpdate describes one edit and the adjustments it caused
func renderUpdate(name string, res rebalancer.Result) string {
	var b strings.Builder
	switch res.Outcome {
	case rebalancer.OutcomeApplied:
		fmt.Fprintf(&b, "%s:\n", name)
		for _, adj := range res.Adjustments {
			fmt.Fprintf(&b, "  %-24s %10s → %10s  %s\n",
				adj.Type, adj.From.StringFixed(2), adj.To.StringFixed(2), styleDim.Render(string(adj.Stage)))
		}
		if !res.IsBalanced() {
			fmt.Fprintf(&b, "  %s\n", styleYellow.Render("unresolved: "+signed(res.Imbalance)))
		}
	case rebalancer.OutcomeNegligible:
		fmt.Fprintf(&b, "%s: %s\n", name, styleDim.Render("change below one cent, nothing to do"))
	case rebalancer.OutcomeNotModifiable:
		fmt.Fprintf(&b, "%s: %s\n", name, styleYellow.Render("bucket is not modifiable, edit ignored"))
	case rebalancer.OutcomeInvalidAmount:
		fmt.Fprintf(&b, "%s: %s\n", name, styleRed.Render("amount must not be negative, edit ignored"))
	default:
		fmt.Fprintf(&b, "%s: %s\n", name, styleRed.Render(string(res.Outcome)))
	}
	return b.String()
}

// renderPolicy draws the rebalancing table and the validation limits
func renderPolicy(p domain.Policy, l validation.Limits) string {
	types := make([]domain.BucketType, 0, len(p.Rules))
	for t := range p.Rules {
		types = append(types, t)
	}
	// Ranked types first in cascade order, then the rest by name
	sort.Slice(types, func(i, j int) bool {
		ri, rj := p.Rules[types[i]].Rank, p.Rules[types[j]].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		if ri != rj {
			return ri < rj
		}
		return types[i] < types[j]
	})

	t := newTable("Type", "Name", "Rank", "Floor", "Adjustable")
	for _, bt := range types {
		rule := p.Rules[bt]
		rank := "-"
		if rule.Rank > 0 {
			rank = fmt.Sprint(rule.Rank)
		}
		t.Row(string(bt), allocator.DisplayName(bt), rank, rule.FloorPercent.String()+"%", fmt.Sprint(rule.Adjustable))
	}

	return t.String() + "\n" + fmt.Sprintf(
		"discretionary: warn above %s%%, block above %s%%\nsum tolerance: ±%s points\n",
		l.SoftPercent.String(), l.HardPercent.String(), l.SumTolerance.String())
}

func renderPlans(plans []*domain.ConfirmedPlan) string {
	t := newTable("Plan", "Confirmed", "Income", "Buckets")
	for _, p := range plans {
		t.Row(
			p.ID.String(),
			p.ConfirmedAt.Local().Format("2006-01-02 15:04"),
			p.MonthlyIncome.StringFixed(2),
			fmt.Sprint(len(p.Buckets)),
		)
	}
	return t.String()
}

func renderProgress(p *progress.PlanProgress) string {
	t := newTable("Bucket", "Balance", "Target", "Complete", "Months left")
	for _, b := range p.Buckets {
		target, complete, months := "-", "-", "-"
		if b.TargetAmount != nil {
			target = b.TargetAmount.StringFixed(2)
		}
		if b.PercentComplete != nil {
			complete = b.PercentComplete.StringFixed(1) + "%"
		}
		if b.MonthsRemaining != nil {
			months = fmt.Sprint(*b.MonthsRemaining)
		} else if b.TargetAmount != nil {
			months = "never"
		}
		t.Row(b.Name, b.LinkedBalance.StringFixed(2), target, complete, months)
	}
	return t.String()
}
