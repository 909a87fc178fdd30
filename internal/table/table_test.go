package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfviz/perfviz/pkg/models"
)

func ts(sec int) models.RowKey {
	return models.TimeRow(time.Date(2024, 3, 5, 10, 0, sec, 0, time.UTC))
}

func obs(chart string, row models.RowKey, column string, value float64) models.Observation {
	return models.Observation{Chart: chart, Row: row, Column: column, Value: value}
}

func TestCollectorFirstWriteWins(t *testing.T) {
	c := NewCollector()
	c.Record(obs("volume:total_ops", ts(0), "vol0", 100))
	c.Record(obs("volume:total_ops", ts(0), "vol0", 999))

	charts := c.Flatten()
	require.Len(t, charts, 1)
	v, ok := charts[0].Table.Cell(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)
	assert.Equal(t, 1, c.Conflicts())
}

func TestCollectorRepeatedIdenticalValueIsNotAConflict(t *testing.T) {
	c := NewCollector()
	c.Record(obs("volume:total_ops", ts(0), "vol0", 100))
	c.Record(obs("volume:total_ops", ts(0), "vol0", 100))
	assert.Equal(t, 0, c.Conflicts())
}

func TestCollectorColumnOrderIsFirstSeen(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "zeta", 1))
	c.Record(obs("x", ts(0), "alpha", 2))
	c.Record(obs("x", ts(1), "zeta", 3))

	charts := c.Flatten()
	require.Len(t, charts, 1)
	assert.Equal(t, []string{"zeta", "alpha"}, charts[0].Table.Columns)
}

func TestFlattenSortsRowsAndKeepsGaps(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(2), "a", 30))
	c.Record(obs("x", ts(0), "a", 10))
	c.Record(obs("x", ts(1), "b", 99))

	charts := c.Flatten()
	require.Len(t, charts, 1)
	table := charts[0].Table
	assert.Equal(t, []string{
		"2024-03-05 10:00:00",
		"2024-03-05 10:00:01",
		"2024-03-05 10:00:02",
	}, table.RowLabels)

	// column a has no value at t1, column b only at t1
	_, ok := table.Cell(1, 0)
	assert.False(t, ok)
	v, ok := table.Cell(1, 1)
	assert.True(t, ok)
	assert.Equal(t, 99.0, v)
	_, ok = table.Cell(0, 1)
	assert.False(t, ok)
}

func TestFlattenSortsBucketRows(t *testing.T) {
	c := NewCollector()
	c.Record(obs("h", models.BucketRow(4, "read_align_histo.4"), "lun0", 1))
	c.Record(obs("h", models.BucketRow(0, "read_align_histo.0"), "lun0", 80))

	charts := c.Flatten()
	require.Len(t, charts, 1)
	assert.Equal(t, []string{"read_align_histo.0", "read_align_histo.4"},
		charts[0].Table.RowLabels)
}

func TestFlattenSkipsEmptyCharts(t *testing.T) {
	c := NewCollector()
	c.SetMeta("never:filled", models.ChartMeta{ID: "never_filled"})
	assert.Empty(t, c.Flatten())
}

func TestRenameColumnKeepsPosition(t *testing.T) {
	c := NewCollector()
	c.Record(obs("lun:total_ops", ts(0), "uuid-1", 5))
	c.Record(obs("lun:total_ops", ts(0), "uuid-2", 6))

	assert.True(t, c.RenameColumn("lun:total_ops", "uuid-1", "/vol/vol0/lun0"))
	assert.False(t, c.RenameColumn("lun:total_ops", "missing", "x"))

	charts := c.Flatten()
	assert.Equal(t, []string{"/vol/vol0/lun0", "uuid-2"}, charts[0].Table.Columns)
}

func TestRenameColumnRefusesCollision(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "a", 1))
	c.Record(obs("x", ts(0), "b", 2))
	assert.False(t, c.RenameColumn("x", "a", "b"))
}

func TestSortColumnsByRelevance(t *testing.T) {
	c := NewCollector()
	for sec, vals := range map[int][3]float64{
		0: {1, 5, 2},
		1: {1, 0, 2},
		2: {1, 0, 2},
	} {
		c.Record(obs("x", ts(sec), "A", vals[0]))
		c.Record(obs("x", ts(sec), "B", vals[1]))
		c.Record(obs("x", ts(sec), "C", vals[2]))
	}

	charts := c.Flatten()
	table := charts[0].Table
	SortColumnsByRelevance(&table)
	assert.Equal(t, []string{"C", "B", "A"}, table.Columns)

	// values moved with their columns
	v, ok := table.Cell(0, 2)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestSortColumnsByRelevanceTieKeepsFirstSeenOrder(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "second", 3))
	c.Record(obs("x", ts(0), "first", 3))

	charts := c.Flatten()
	table := charts[0].Table
	SortColumnsByRelevance(&table)
	assert.Equal(t, []string{"second", "first"}, table.Columns)
}

func TestSortColumnsByName(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "zeta", 1))
	c.Record(obs("x", ts(0), "alpha", 2))

	charts := c.Flatten()
	table := charts[0].Table
	SortColumnsByName(&table)
	assert.Equal(t, []string{"alpha", "zeta"}, table.Columns)
}

func TestQuotient(t *testing.T) {
	c := NewCollector()
	c.Record(obs("num", ts(0), "vol0", 10))
	c.Record(obs("num", ts(1), "vol0", 15))
	c.Record(obs("num", ts(2), "vol0", 20))
	c.Record(obs("den", ts(0), "vol0", 2))
	c.Record(obs("den", ts(2), "vol0", 4))

	charts := c.Flatten()
	require.Len(t, charts, 2)
	ratio := Quotient("ratio", &charts[0].Table, &charts[1].Table)

	v, ok := ratio.Cell(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	// denominator has no row at t1, so the ratio has a gap there
	_, ok = ratio.Cell(1, 0)
	assert.False(t, ok)

	v, ok = ratio.Cell(2, 0)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)
}

func TestScaleChart(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "a", 2000))
	c.Record(obs("x", ts(1), "a", 3000))
	c.ScaleChart("x", 0.001)

	charts := c.Flatten()
	v, _ := charts[0].Table.Cell(0, 0)
	assert.Equal(t, 2.0, v)
	v, _ = charts[0].Table.Cell(1, 0)
	assert.Equal(t, 3.0, v)
}

func TestDivideCell(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "a", 10))

	assert.True(t, c.DivideCell("x", ts(0), "a", 4))
	assert.False(t, c.DivideCell("x", ts(1), "a", 4))
	assert.False(t, c.DivideCell("x", ts(0), "missing", 4))

	charts := c.Flatten()
	v, _ := charts[0].Table.Cell(0, 0)
	assert.Equal(t, 2.5, v)
}

func TestDivideCellZeroDivisor(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "a", 10))
	assert.True(t, c.DivideCell("x", ts(0), "a", 0))

	charts := c.Flatten()
	v, ok := charts[0].Table.Cell(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestBreakProducesAllGapRow(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "a", 1))
	c.Break("x", ts(1))
	c.Record(obs("x", ts(2), "a", 2))

	charts := c.Flatten()
	table := charts[0].Table
	require.Len(t, table.RowLabels, 3)
	_, ok := table.Cell(1, 0)
	assert.False(t, ok)
}

func TestFlattenIsRepeatable(t *testing.T) {
	c := NewCollector()
	c.Record(obs("x", ts(0), "a", 1))
	c.Record(obs("x", ts(1), "b", 5))
	c.Record(obs("x", ts(1), "a", 2))
	c.SetMeta("x", models.ChartMeta{ID: "x", Title: "x"})

	first := c.Flatten()
	second := c.Flatten()
	require.Equal(t, first, second)

	// reordering one result must not leak back into the collector
	SortColumnsByRelevance(&second[0].Table)
	assert.Equal(t, first, c.Flatten())
}

func TestSetTimezoneAppliesToLaterCharts(t *testing.T) {
	c := NewCollector()
	c.Record(obs("early", ts(0), "a", 1))
	c.SetTimezone("CET")
	c.Record(obs("late", ts(0), "a", 1))
	c.SetMeta("late", models.ChartMeta{ID: "late", Title: "late"})

	charts := c.Flatten()
	require.Len(t, charts, 2)
	assert.Equal(t, "CET", charts[0].Meta.Timezone)
	assert.Equal(t, "CET", charts[1].Meta.Timezone)
}

func TestSortChartsPerCounterAlwaysByName(t *testing.T) {
	c := NewCollector()
	c.Record(obs("IOPS", ts(0), "nfs_ops", 1))
	c.Record(obs("IOPS", ts(0), "cifs_ops", 100))
	c.Record(obs("volume:total_ops", ts(0), "vol-b", 1))
	c.Record(obs("volume:total_ops", ts(0), "vol-a", 100))
	c.SetMeta("IOPS", models.ChartMeta{ID: "IOPS", Title: "IOPS", PerCounter: true})

	charts := c.Flatten()
	SortCharts(charts, false)
	assert.Equal(t, []string{"cifs_ops", "nfs_ops"}, charts[0].Table.Columns)
	assert.Equal(t, []string{"vol-a", "vol-b"}, charts[1].Table.Columns)

	SortCharts(charts, true)
	assert.Equal(t, []string{"cifs_ops", "nfs_ops"}, charts[0].Table.Columns)
}

func TestQuotientZeroDenominator(t *testing.T) {
	c := NewCollector()
	c.Record(obs("num", ts(0), "vol0", 7))
	c.Record(obs("den", ts(0), "vol0", 0))

	charts := c.Flatten()
	ratio := Quotient("ratio", &charts[0].Table, &charts[1].Table)
	v, ok := ratio.Cell(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}
