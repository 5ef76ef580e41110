package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/engine"
	"riskline/internal/schedule"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

func won(v float64) string {
	return humanize.Commaf(float64(int64(v))) + " KRW"
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func weeks(v float64) string {
	return humanize.FormatFloat("#,###.##", v) + " wk"
}

func printRun(run domain.Run) {
	m := run.Metrics
	regime := "without detection"
	if run.DetectionEnabled {
		regime = "with detection (" + run.QualityLevel + ")"
	}
	tw := newTable(fmt.Sprintf("%s, seed %d, %s", run.ProjectName, run.Seed, regime))
	tw.AppendRows([]table.Row{
		{"Run", run.ID},
		{"Recombiner", run.Recombiner},
		{"Issues", fmt.Sprintf("%d (%d detected, %d missed)", m.IssuesCount, m.DetectedCount, m.MissedCount)},
		{"Planned duration", fmt.Sprintf("%d days", m.PlannedDuration)},
		{"Delay", fmt.Sprintf("%s (%.1f days, %s)", weeks(m.DelayWeeks), m.DelayDays, pct(m.ScheduleDelayRate))},
		{"Planned budget", won(m.PlannedBudget)},
		{"Actual cost", won(m.ActualCost)},
		{"Direct increase", won(m.DirectCostIncrease)},
		{"Financial cost", won(m.FinancialCost)},
		{"Budget overrun", pct(m.BudgetOverrunRate)},
		{"Final interest rate", pct(m.FinalInterestRate)},
	})
	if run.CreatedAt != "" {
		tw.AppendRow(table.Row{"Recorded", humanTime(run.CreatedAt)})
	}
	tw.Render()
}

func humanTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func printBenchmark(c engine.BenchmarkCheck) {
	tw := newTable("Benchmark (" + c.Regime + ")")
	tw.AppendHeader(table.Row{"Metric", "Reference", "Deviation", "In range"})
	tw.AppendRow(table.Row{"Budget overrun", pct(c.ReferenceBudgetOverrun), pct(c.BudgetOverrunDeviation), c.BudgetOverrunInRange})
	tw.AppendRow(table.Row{"Schedule delay", pct(c.ReferenceScheduleDelay), pct(c.ScheduleDelayDeviation), c.ScheduleDelayInRange})
	tw.Render()
}

func printImpacts(items []domain.Impact) {
	tw := newTable("Impacts")
	tw.AppendHeader(table.Row{"Day", "Phase", "Issue", "Work type", "Delay", "Cost", "Detected", "P(detect)"})
	for _, imp := range items {
		detected := ""
		if imp.Detected {
			detected = "yes"
		}
		tw.AppendRow(table.Row{imp.Day, imp.Phase, imp.IssueID + " " + imp.IssueName, imp.WorkType,
			weeks(imp.DelayWeeks), pct(imp.CostIncrease), detected, fmt.Sprintf("%.2f", imp.DetectionProbability)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 48}})
	tw.Render()
}

func printComparison(c engine.Comparison) {
	a, b := c.Traditional.Run.Metrics, c.Detection.Run.Metrics
	tw := newTable(fmt.Sprintf("%s, seed %d", c.Traditional.Run.ProjectName, c.Traditional.Run.Seed))
	tw.AppendHeader(table.Row{"", "Without detection", "With detection", "Difference"})
	tw.AppendRows([]table.Row{
		{"Issues", a.IssuesCount, b.IssuesCount, ""},
		{"Detected", a.DetectedCount, b.DetectedCount, pct(c.DetectionRate)},
		{"Delay (days)", fmt.Sprintf("%.1f", a.DelayDays), fmt.Sprintf("%.1f", b.DelayDays), fmt.Sprintf("%.1f", c.DelayDaysReduced)},
		{"Actual cost", won(a.ActualCost), won(b.ActualCost), won(c.CostReduced)},
		{"Budget overrun", pct(a.BudgetOverrunRate), pct(b.BudgetOverrunRate), pct(c.CostReductionRate)},
		{"Interest rate", pct(a.FinalInterestRate), pct(b.FinalInterestRate), ""},
	})
	tw.AppendFooter(table.Row{"ROI", "", "", pct(c.ROI)})
	tw.Render()
}

func printSweep(res engine.SweepResult, took time.Duration) {
	tw := newTable(fmt.Sprintf("%s: %d seeds from %d (%s)", res.Template, res.Runs, res.FirstSeed, took.Round(time.Millisecond)))
	tw.AppendHeader(table.Row{"Metric", "Regime", "P50", "P85", "P95", "Mean"})
	row := func(metric, regime string, p engine.Percentiles, format func(float64) string) {
		tw.AppendRow(table.Row{metric, regime, format(p.P50), format(p.P85), format(p.P95), format(p.Mean)})
	}
	row("Delay", "without", res.Traditional.DelayWeeks, weeks)
	row("Delay", "with", res.Detection.DelayWeeks, weeks)
	row("Overrun", "without", res.Traditional.OverrunRate, pct)
	row("Overrun", "with", res.Detection.OverrunRate, pct)
	row("Detection", "with", res.Detection.DetectionRate, pct)
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	tw.Render()
}

func printRuns(items []domain.Run) {
	tw := newTable("")
	tw.AppendHeader(table.Row{"ID", "Template", "Seed", "Detection", "Issues", "Delay", "Overrun", "Recorded"})
	for _, r := range items {
		det := "off"
		if r.DetectionEnabled {
			det = r.QualityLevel
		}
		tw.AppendRow(table.Row{r.ID[:8], r.Template, r.Seed, det, r.Metrics.IssuesCount,
			weeks(r.Metrics.DelayWeeks), pct(r.Metrics.BudgetOverrunRate), humanTime(r.CreatedAt)})
	}
	tw.Render()
}

func printTemplates(cfg *config.Config) {
	tw := newTable("Project templates")
	tw.AppendHeader(table.Row{"Key", "Name", "Budget", "Duration", "Days", "Phases"})
	for _, key := range cfg.TemplateKeys() {
		t := cfg.Templates[key]
		var phases []string
		for _, p := range t.Phases {
			phases = append(phases, fmt.Sprintf("%s:%d", p.Name, p.Days))
		}
		name := key
		if key == cfg.DefaultTemplate {
			name += " *"
		}
		tw.AppendRow(table.Row{name, t.Name, won(t.Budget), t.Duration, t.TotalDays(), strings.Join(phases, " ")})
	}
	tw.Render()
}

func printIssues(items []domain.Issue) {
	tw := newTable("Issues")
	tw.AppendHeader(table.Row{"ID", "Name", "Phase", "Work type", "Sev", "Delay (wk)", "Cost", "Detectable"})
	for _, is := range items {
		detectable := "-"
		if b := is.Detection.BaseDetectability; b != nil {
			detectable = fmt.Sprintf("%.2f", *b)
		}
		tw.AppendRow(table.Row{is.ID, is.Name, is.Phase, is.WorkType, is.Severity,
			fmt.Sprintf("%g-%g", is.DelayWeeksMin, is.DelayWeeksMax),
			fmt.Sprintf("%s-%s", pct(is.CostIncreaseMin), pct(is.CostIncreaseMax)), detectable})
	}
	tw.Render()
}

func printNetwork(n *schedule.Network) {
	tw := newTable("Schedule network")
	tw.AppendHeader(table.Row{"Category", "Predecessors", "Float (days)", "Critical"})
	for _, c := range n.Categories() {
		critical := ""
		if n.IsCritical(c) {
			critical = text.FgRed.Sprint("yes")
		}
		tw.AppendRow(table.Row{c, strings.Join(n.Predecessors(c), ", "), n.FloatDays(c), critical})
	}
	tw.AppendFooter(table.Row{"Critical path", strings.Join(n.CriticalPath(), " > "), "", ""})
	tw.Render()
}

func breakdownFor(n *schedule.Network, e engine.Engine, items []domain.Impact) schedule.Breakdown {
	records := make([]domain.ActiveImpact, 0, len(items))
	for _, imp := range items {
		var floatDays *float64
		if is, err := e.Catalog.Get(imp.IssueID); err == nil {
			floatDays = is.FloatDays
		}
		records = append(records, imp.ActiveRecord(floatDays))
	}
	return schedule.NewAggregator(n).Breakdown(records)
}

func printBreakdown(b schedule.Breakdown) {
	tw := newTable("Critical path reconciliation")
	tw.AppendHeader(table.Row{"Category", "Raw", "Float (days)", "Effective", "Cumulative"})
	for _, c := range b.Categories {
		tw.AppendRow(table.Row{c.Category, weeks(c.RawWeeks), c.FloatDays, weeks(c.Effective), weeks(c.Cumulative)})
	}
	tw.AppendFooter(table.Row{"Total", fmt.Sprintf("path %s", weeks(b.PathWeeks)),
		fmt.Sprintf("x%.2f", b.Overhead), fmt.Sprintf("%d records", b.Records), weeks(b.TotalWeeks)})
	tw.Render()
}

func printEvents(items []domain.Event) {
	tw := newTable("")
	tw.AppendHeader(table.Row{"ID", "When", "Type", "Entity", "Run"})
	for _, e := range items {
		run := e.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		tw.AppendRow(table.Row{e.ID, humanTime(e.TS), e.Type, e.EntityKind, run})
	}
	tw.Render()
}
