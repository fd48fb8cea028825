package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func comma(n int64) string {
	return humanize.Comma(n)
}

func renderTrack(result *domain.TrackResult) error {
	if outputJSON {
		return printJSON(result)
	}

	bold.Printf("\nActivity for %s\n\n", domain.FormatDay(result.Date))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Commits", "Added", "Deleted", "Stored"})
	for _, r := range result.Repositories {
		table.Append([]string{
			r.Repo,
			comma(int64(r.Commits)),
			"+" + comma(int64(r.LinesAdded)),
			"-" + comma(int64(r.LinesDeleted)),
			r.Result.String(),
		})
	}
	table.SetFooter([]string{"Total", comma(int64(result.TotalCommits)), "", "", ""})
	table.Render()

	for _, e := range result.Errors {
		yellow.Printf("Warning: %s: %s\n", e.Repo, e.Message)
	}
	if result.TotalCommits == 0 {
		yellow.Println("No commits tracked for this day.")
	}
	renderAchievementUnlocks(result.NewAchievements)
	return nil
}

func renderAchievementUnlocks(events []domain.AchievementEvent) {
	for _, ev := range events {
		green.Printf("Achievement unlocked: %s\n", ev.Message)
	}
}

func renderBackfill(report *domain.BackfillReport) error {
	if outputJSON {
		return printJSON(report)
	}

	title := "Backfill report"
	if report.DryRun {
		title += " (dry run)"
	}
	bold.Printf("\n%s: %s to %s\n\n", title, domain.FormatDay(report.StartDate), domain.FormatDay(report.EndDate))

	created := "Entries Created"
	if report.DryRun {
		created = "Entries To Create"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Processed Days", comma(int64(report.ProcessedDays))})
	table.Append([]string{"Repositories", comma(int64(report.Repositories))})
	table.Append([]string{"Repositories With Activity", comma(int64(report.ReposWithActivity))})
	table.Append([]string{created, comma(int64(report.Created))})
	if report.Force {
		table.Append([]string{"Entries Replaced", comma(int64(report.Replaced))})
	}
	table.Append([]string{"Entries Skipped", comma(int64(report.Skipped))})
	table.Append([]string{"Failed Writes", comma(int64(report.FailedWrites))})
	table.Append([]string{"Duration", report.Duration.Round(time.Millisecond).String()})
	table.Render()

	if report.Partial() {
		yellow.Printf("\n%d items could not be processed; the rest succeeded:\n", len(report.Errors))
		for _, e := range report.Errors {
			date := "all days"
			if !e.Date.IsZero() {
				date = domain.FormatDay(e.Date)
			}
			yellow.Printf("  - %s %s (%s): %s\n", e.Repo, date, e.Kind, e.Message)
		}
	} else {
		green.Println("\nBackfill complete.")
	}
	return nil
}

func renderStreaks(summary *domain.StreakSummary, daily []domain.StreakRecord) error {
	if outputJSON {
		return printJSON(map[string]any{"summary": summary, "daily": daily})
	}

	fmt.Println()
	if summary.Current > 0 {
		green.Printf("Current streak: %d days", summary.Current)
		if !summary.ActiveToday {
			yellow.Print(" (commit today to keep it going)")
		}
		fmt.Println()
	} else {
		yellow.Println("No active streak. Commit today to start one.")
	}
	fmt.Printf("Longest streak: %d days\n", summary.Longest)
	fmt.Printf("Weekly streak:  %d weeks\n", summary.CurrentWeekly)
	cyan.Printf("Next milestone: %d days (%d to go)\n\n", summary.NextMilestone, summary.DaysToMilestone)

	if len(daily) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Start", "End", "Length", "Status"})
	for _, r := range daily {
		end, status := domain.FormatDay(r.LastDate), "closed"
		if r.Active {
			status = "active"
		}
		table.Append([]string{domain.FormatDay(r.StartDate), end, fmt.Sprintf("%d", r.Length), status})
	}
	table.Render()
	return nil
}

func renderHistory(points []domain.SeriesPoint, summary domain.SeriesSummary, bars []domain.Bar) error {
	if outputJSON {
		return printJSON(map[string]any{"points": points, "summary": summary, "bars": bars})
	}

	bold.Printf("\nCommit history (%s): %s\n\n", summary.Granularity, summary.RangeLabel)

	labelWidth := 0
	for _, b := range bars {
		labelWidth = max(labelWidth, len(b.Label))
	}
	for i, b := range bars {
		bar := strings.Repeat("█", b.Height)
		line := fmt.Sprintf("%-*s │ %s %s", labelWidth, b.Label, bar, comma(b.Value))
		if i < len(points) && points[i].DeltaPercent < 0 {
			fmt.Println(line)
			continue
		}
		green.Println(line)
	}

	fmt.Println()
	fmt.Printf("Total:   %s\n", comma(summary.Total))
	fmt.Printf("Peak:    %s\n", comma(summary.Peak))
	fmt.Printf("Average: %.1f\n", summary.Average)

	trend := fmt.Sprintf("Trend:   %+.1f%% (%s)\n", summary.TrendPercent, summary.Direction)
	switch summary.Direction {
	case domain.TrendUp:
		green.Print(trend)
	case domain.TrendDown:
		red.Print(trend)
	default:
		fmt.Print(trend)
	}
	return nil
}

func renderAchievements(events []*domain.AchievementEvent, stats *domain.AchievementStats) error {
	if outputJSON {
		return printJSON(map[string]any{"achievements": events, "stats": stats})
	}

	bold.Printf("\nAchievements: %d total, %d in the last 30 days\n\n", stats.Total, stats.Recent)
	if len(events) == 0 {
		yellow.Println("No achievements yet. Keep committing!")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Type", "Achievement", "Unlocked"})
	for _, ev := range events {
		table.Append([]string{
			domain.FormatDay(ev.TriggerDate),
			string(ev.Type),
			ev.Message,
			humanize.Time(ev.CreatedAt),
		})
	}
	table.Render()
	return nil
}

func renderStats(m *domain.Momentum, records *domain.HallOfFame) error {
	if outputJSON {
		return printJSON(map[string]any{"momentum": m, "hall_of_fame": records})
	}

	bold.Println("\nMomentum")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"This Week", comma(m.ThisWeek)})
	table.Append([]string{"Last Week", comma(m.LastWeek)})
	table.Append([]string{"Week Over Week", fmt.Sprintf("%+.1f%%", m.WeekOverWeek)})
	table.Append([]string{"Average Daily", fmt.Sprintf("%.1f", m.AverageDaily)})
	table.Append([]string{"Active Days", fmt.Sprintf("%d/7", m.ConsistencyScore)})
	table.Append([]string{"Level", string(m.Level)})
	table.Render()

	bold.Println("\nHall of Fame")
	table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Record", "Value", "Date"})
	for _, r := range []struct {
		name   string
		record domain.PersonalRecord
		unit   string
	}{
		{"Best Day", records.BestDayCommits, "commits"},
		{"Most Lines Changed", records.BestDayLines, "lines"},
		{"Best 7 Days", records.BestWeek, "commits"},
	} {
		date := "-"
		if !r.record.Date.IsZero() {
			date = domain.FormatDay(r.record.Date)
		}
		table.Append([]string{r.name, comma(r.record.Value) + " " + r.unit, date})
	}
	table.Render()
	return nil
}
