package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_EmptySeries(t *testing.T) {
	s := summarize(nil)
	assert.Equal(t, 0, s.Count)
	assert.Equal(t, 0.0, s.Mean)
}

func TestSummarize_SingleSample(t *testing.T) {
	s := summarize([]float64{4})
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 4.0, s.Mean)
	assert.Equal(t, 0.0, s.Std)
	assert.Equal(t, 4.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
}

func TestSummarize_DescriptiveStatistics(t *testing.T) {
	ys := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	s := summarize(ys)

	assert.Equal(t, 8, s.Count)
	assert.Equal(t, 5.0, s.Mean)
	assert.InDelta(t, 2.138, s.Std, 0.001)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.LessOrEqual(t, s.P25, s.P50)
	assert.LessOrEqual(t, s.P50, s.P75)
}

func TestSummarize_InputOrderDoesNotMatter(t *testing.T) {
	a := summarize([]float64{1, 2, 3, 4, 5})
	b := summarize([]float64{5, 3, 1, 4, 2})
	assert.Equal(t, a, b)
}

func TestSummarizeWorld_SkipsCategoricalSeries(t *testing.T) {
	w := newTestWorld(t)
	q := NewQuantity(w, "level", "units", QuantityConfig{Start: Amt(1), Gather: true, SampleFrequency: 1})
	_ = q
	e := NewEntity(w, "Probe", "", &funcState{StateCore: NewStateCore("idle")})
	w.AddSeries("states", NewStateSeries(w, e, 0))

	runTicks(t, w, 5)
	summaries := summarizeWorld(w)
	require.Len(t, summaries, 1, "state series are categorical and carry no statistics")
	assert.Equal(t, "level", summaries[0].Series)
	assert.Equal(t, "level", summaries[0].Dataset)
	assert.Equal(t, 1.0, summaries[0].Mean)
}

func TestSummaryTable_TagsRowsWithVariation(t *testing.T) {
	table := SummaryTable([]SeriesSummary{
		{WorldIndex: 0, Variation: "beds.slots=5", Dataset: "d", Series: "s", Count: 3, Mean: 1.5},
	})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "0", table.Rows[0][0])
	assert.Equal(t, "beds.slots=5", table.Rows[0][1])
	assert.Equal(t, "3", table.Rows[0][4])
	assert.Equal(t, "1.5", table.Rows[0][5])
}
