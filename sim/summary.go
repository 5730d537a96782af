package sim

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SeriesSummary is the descriptive-statistics digest of one numeric series of
// one world, tagged with the world's batch variation so batch runs can be
// compared side by side.
type SeriesSummary struct {
	WorldIndex int
	Variation  string
	Dataset    string
	Series     string

	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
	P25   float64
	P50   float64
	P75   float64
}

// numericSource is satisfied by every DataSource whose samples are numeric.
// Categorical sources (state series) are skipped by summarization.
type numericSource interface {
	DataSource
	Ys() []float64
}

// summarizeWorld computes the summary of every numeric series the world
// recorded, in dataset creation order.
func summarizeWorld(w *World) []SeriesSummary {
	var summaries []SeriesSummary
	for _, ds := range w.Datasets() {
		for _, src := range ds.Sources() {
			num, ok := src.(numericSource)
			if !ok {
				continue
			}
			s := summarize(num.Ys())
			s.WorldIndex = w.Index()
			s.Variation = w.Variation()
			s.Dataset = ds.ID()
			s.Series = src.Name()
			summaries = append(summaries, s)
		}
	}
	return summaries
}

// summarize computes the descriptive statistics of one sample slice.
func summarize(ys []float64) SeriesSummary {
	s := SeriesSummary{Count: len(ys)}
	if len(ys) == 0 {
		return s
	}

	sorted := make([]float64, len(ys))
	copy(sorted, ys)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.P25 = stat.Quantile(0.25, stat.Empirical, sorted, nil)
	s.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P75 = stat.Quantile(0.75, stat.Empirical, sorted, nil)
	return s
}

var summaryColumns = []string{
	"world", "variation", "dataset", "series",
	"count", "mean", "std", "min", "max", "p25", "p50", "p75",
}

// SummaryTable renders batch summaries as one aggregated table.
func SummaryTable(summaries []SeriesSummary) *Table {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.WorldIndex),
			s.Variation,
			s.Dataset,
			s.Series,
			fmt.Sprintf("%d", s.Count),
			FormatFloat(s.Mean),
			FormatFloat(s.Std),
			FormatFloat(s.Min),
			FormatFloat(s.Max),
			FormatFloat(s.P25),
			FormatFloat(s.P50),
			FormatFloat(s.P75),
		})
	}
	return &Table{Name: "Aggregated", Columns: summaryColumns, Rows: rows}
}
