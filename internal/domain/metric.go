package domain

import "time"

// Granularity is the width of an aggregate period
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Valid reports whether g is one of the known granularities
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// Bucket is an aggregate over [PeriodStart, PeriodEnd], both days inclusive.
// It is derived data and always recomputable from the ledger.
type Bucket struct {
	Granularity       Granularity `json:"granularity"`
	PeriodStart       time.Time   `json:"period_start"`
	PeriodEnd         time.Time   `json:"period_end"`
	Label             string      `json:"label"`
	TotalCommits      int64       `json:"total_commits"`
	TotalLinesAdded   int64       `json:"total_lines_added"`
	TotalLinesDeleted int64       `json:"total_lines_deleted"`
	ReposActive       int         `json:"repositories_active"`
}

// SeriesPoint is one chart-ready period
type SeriesPoint struct {
	Label        string    `json:"period_label"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Total        int64     `json:"total"`
	DeltaPercent float64   `json:"delta_percent"`
}

// TrendDirection classifies a trend percentage
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// SeriesSummary holds the derived statistics of a series
type SeriesSummary struct {
	Granularity  Granularity    `json:"granularity"`
	Total        int64          `json:"total"`
	Peak         int64          `json:"peak"`
	Average      float64        `json:"average"`
	TrendPercent float64        `json:"trend_percent"`
	Direction    TrendDirection `json:"direction"`
	RangeLabel   string         `json:"range_label"`
}

// History is a complete chart payload
type History struct {
	Points  []SeriesPoint `json:"points"`
	Summary SeriesSummary `json:"summary"`
}

// Bar is a scaled chart bar
type Bar struct {
	Label  string `json:"label"`
	Value  int64  `json:"value"`
	Height int    `json:"height"`
}

// PerformanceLevel categorizes recent activity
type PerformanceLevel string

const (
	PerformanceStarting  PerformanceLevel = "starting"
	PerformanceBuilding  PerformanceLevel = "building"
	PerformanceCrushing  PerformanceLevel = "crushing"
	PerformanceLegendary PerformanceLevel = "legendary"
)

// Momentum compares the last 7 days with the 7 days before
type Momentum struct {
	ThisWeek         int64            `json:"this_week"`
	LastWeek         int64            `json:"last_week"`
	WeekOverWeek     float64          `json:"week_over_week"`
	DailyTrend       []int64          `json:"daily_trend"`
	AverageDaily     float64          `json:"average_daily"`
	ConsistencyScore int              `json:"consistency_score"`
	Level            PerformanceLevel `json:"performance_level"`
}

// PersonalRecord is a best-ever value and the day it was reached
type PersonalRecord struct {
	Value int64     `json:"value"`
	Date  time.Time `json:"date"`
}

// HallOfFame holds personal records
type HallOfFame struct {
	BestDayCommits PersonalRecord `json:"best_day_commits"`
	BestDayLines   PersonalRecord `json:"best_day_lines"`
	BestWeek       PersonalRecord `json:"best_week_commits"`
}
