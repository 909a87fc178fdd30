package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/internal/table"
)

// the collector is the production sink
var _ Sink = (*table.Collector)(nil)

// header lines of a summary block; the sub-labels must end exactly beneath
// the end of their category token
var (
	sysstatUpper = " CPU   NFS  CIFS    Net  kB/s   Disk  kB/s"
	sysstatLower = strings.Repeat(" ", 21) + "in" + strings.Repeat(" ", 9) + "read" + " " + "write"
)

func perfstatFixture() string {
	return strings.Join([]string{
		`PerfStat executing "2" ITERATIONS, each 60 seconds`,
		`=-=-=-=-=-= BEGIN Iteration 1  =-=-=-=-=-= Mon Jan 01 00:00:00 GMT 2000`,
		`aggregate:aggr0:total_transfers:1500/s`,
		`processor:processor0:processor_busy:42%`,
		`volume:vol0:read_data:2000000b/s`,
		`volume:vol0:avg_latency:12.5us`,
		`lun:uuid-1:total_ops:100/s`,
		`lun:uuid-1:read_align_histo.0:80%`,
		`lun:uuid-1:read_align_histo.1:15%`,
		`LUN Path: /vol/vol1/lun1`,
		`LUN UUID: uuid-1`,
		`=-=-=-=-=-= PERF sysstat_x_1sec =-=-=-=-=-=`,
		`PERFSTAT_EPOCH: 0946684805 [Mon Jan 01 00:00:05 GMT 2000]`,
		sysstatUpper,
		sysstatLower,
		` 45%  100    0    2000  3000   4000  5000`,
		` 50%  200    0    1000  1000   2000  2000`,
		`--`,
		`---- statit ---`,
		`Begin: Mon Jan 01 00:00:10 GMT 2000`,
		`disk             ut%  xfers  ureads--chain-usecs writes--chain-usecs`,
		`/aggr0/plex0/rg0:`,
		`0a.00.1   5  0.5  0.2  1.2  580  0.2  24.4  627  0.1  11.5  835  0.0  1.0  2.0  0.0  1.0  2.0  3.0`,
		`Aggregate statistics:`,
		`=-=-=-=-=-= END Iteration 1  =-=-=-=-=-= Mon Jan 01 00:01:00 GMT 2000`,
		`=-=-=-=-=-= BEGIN Iteration 2  =-=-=-=-=-= Mon Jan 01 00:01:05 GMT 2000`,
		`aggregate:aggr0:total_transfers:1600/s`,
		`=-=-=-=-=-= END Iteration 2  =-=-=-=-=-= Mon Jan 01 00:02:00 GMT 2000`,
		``,
	}, "\n")
}

func findChart(t *testing.T, charts []table.Chart, id string) table.Chart {
	t.Helper()
	for _, c := range charts {
		if c.Table.ID == id {
			return c
		}
	}
	t.Fatalf("chart %s not found", id)
	return table.Chart{}
}

func TestPerfstatParse(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(perfstatFixture())))

	charts := sink.Flatten()

	agg := findChart(t, charts, "aggregate:total_transfers")
	assert.Equal(t, []string{"aggr0"}, agg.Table.Columns)
	require.Len(t, agg.Table.RowLabels, 2)
	v, _ := agg.Table.Cell(0, 0)
	assert.Equal(t, 1500.0, v)
	v, _ = agg.Table.Cell(1, 0)
	assert.Equal(t, 1600.0, v)
	assert.Equal(t, "/s", agg.Meta.Unit)
	assert.Equal(t, "GMT", agg.Meta.Timezone)

	cpu := findChart(t, charts, "processor:processor_busy")
	v, _ = cpu.Table.Cell(0, 0)
	assert.Equal(t, 42.0, v)

	// b/s values come out as rounded MB/s
	rd := findChart(t, charts, "volume:read_data")
	v, _ = rd.Table.Cell(0, 0)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, "MB/s", rd.Meta.Unit)

	assert.Equal(t, "GMT", p.Timezone())
	assert.Equal(t, 0, diag.Total())
}

func TestPerfstatParse_LUNTranslation(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(perfstatFixture())))

	charts := sink.Flatten()

	ops := findChart(t, charts, "lun:total_ops")
	assert.Equal(t, []string{"/vol/vol1/lun1"}, ops.Table.Columns)

	histo := findChart(t, charts, "lun:read_align_histo")
	assert.Equal(t, []string{"/vol/vol1/lun1"}, histo.Table.Columns)
	assert.Equal(t, []string{"read_align_histo.0", "read_align_histo.1"}, histo.Table.RowLabels)
	assert.True(t, histo.Meta.BarChart)
	v, _ := histo.Table.Cell(0, 0)
	assert.Equal(t, 80.0, v)
}

func TestPerfstatParse_Sysstat(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(perfstatFixture())))

	charts := sink.Flatten()

	percent := findChart(t, charts, "sysstat_1sec:percent")
	assert.Equal(t, []string{"CPU"}, percent.Table.Columns)
	// two value rows plus the iteration separator row
	require.Len(t, percent.Table.RowLabels, 3)
	v, _ := percent.Table.Cell(0, 0)
	assert.Equal(t, 45.0, v)
	v, _ = percent.Table.Cell(1, 0)
	assert.Equal(t, 50.0, v)
	_, ok := percent.Table.Cell(2, 0)
	assert.False(t, ok)

	mbs := findChart(t, charts, "sysstat_1sec:MBs")
	assert.Equal(t, []string{"Net_in", "Net_out", "Disk_read", "Disk_write"}, mbs.Table.Columns)
	want := []float64{2, 3, 4, 5}
	for col, expected := range want {
		v, _ := mbs.Table.Cell(0, col)
		assert.Equal(t, expected, v)
	}

	iops := findChart(t, charts, "sysstat_1sec:IOPS")
	assert.Equal(t, []string{"NFS", "CIFS"}, iops.Table.Columns)
	v, _ = iops.Table.Cell(1, 0)
	assert.Equal(t, 200.0, v)
}

func TestPerfstatParse_SysstatDecimalRow(t *testing.T) {
	fixture := strings.Join([]string{
		`PerfStat executing "1" ITERATIONS, each 60 seconds`,
		`=-=-=-=-=-= BEGIN Iteration 1  =-=-=-=-=-= Mon Jan 01 00:00:00 GMT 2000`,
		`=-=-=-=-=-= PERF sysstat_x_1sec =-=-=-=-=-=`,
		`PERFSTAT_EPOCH: 0946684805 [Mon Jan 01 00:00:05 GMT 2000]`,
		sysstatUpper,
		sysstatLower,
		` 45.2  100    0    2000  3000   4000  5000`,
		sysstatUpper,
		` 50%   200    0    1000  1000   2000  2000`,
		`--`,
		`=-=-=-=-=-= END Iteration 1  =-=-=-=-=-= Mon Jan 01 00:01:00 GMT 2000`,
		``,
	}, "\n")

	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(fixture)))

	percent := findChart(t, sink.Flatten(), "sysstat_1sec:percent")
	// a fractional CPU value is a data row, the repeated header is not
	require.Len(t, percent.Table.RowLabels, 3)
	v, _ := percent.Table.Cell(0, 0)
	assert.Equal(t, 45.2, v)
	v, _ = percent.Table.Cell(1, 0)
	assert.Equal(t, 50.0, v)
	_, ok := percent.Table.Cell(2, 0)
	assert.False(t, ok)
}

func TestPerfstatParse_Statit(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(perfstatFixture())))

	charts := sink.Flatten()
	disks := findChart(t, charts, "statit:disk_statistics")
	assert.Equal(t, []string{"0a.00.1"}, disks.Table.Columns)
	v, _ := disks.Table.Cell(0, 0)
	assert.Equal(t, 5.0, v)
	assert.Equal(t, "%", disks.Meta.Unit)
}

func TestPerfstatParse_IterationMismatchIsWarning(t *testing.T) {
	input := strings.Join([]string{
		`PerfStat executing "3" ITERATIONS, each 60 seconds`,
		`=-=-=-=-=-= BEGIN Iteration 1  =-=-=-=-=-= Mon Jan 01 00:00:00 GMT 2000`,
		`aggregate:aggr0:total_transfers:1500/s`,
		`=-=-=-=-=-= END Iteration 1  =-=-=-=-=-= Mon Jan 01 00:01:00 GMT 2000`,
		``,
	}, "\n")

	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(input)))
	assert.Greater(t, diag.Total(), 0)
}

func TestPerfstatParse_NotADump(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	err := p.Parse(strings.NewReader("some\nrandom\ntext\n"))
	assert.Error(t, err)
}

func TestPerfstatParse_MissingMarkerTimestampFallsBack(t *testing.T) {
	input := strings.Join([]string{
		`PerfStat executing "1" ITERATIONS, each 60 seconds`,
		`=-=-=-=-=-= BEGIN Iteration 1  =-=-=-=-=-=`,
		`aggregate:aggr0:total_transfers:1500/s`,
		`=-=-=-=-=-= END Iteration 1  =-=-=-=-=-= Mon Jan 01 00:01:00 GMT 2000`,
		``,
	}, "\n")

	sink := table.NewCollector()
	var diag Diagnostics
	p := NewPerfstat(sink, &diag)
	require.NoError(t, p.Parse(strings.NewReader(input)))
	assert.Greater(t, diag.Total(), 0)

	charts := sink.Flatten()
	agg := findChart(t, charts, "aggregate:total_transfers")
	assert.Equal(t, "2017-01-01 00:00:00", agg.Table.RowLabels[0])
}

func TestSplitWithEnds(t *testing.T) {
	tokens, ends := splitWithEnds(" CPU  Net")
	assert.Equal(t, []string{"CPU", "Net"}, tokens)
	assert.Equal(t, []int{4, 9}, ends)
}

func TestHeaderMatchNeedsAlignedLower(t *testing.T) {
	// "Disk" ends at offset 4; "util" under it matches, "read" does not
	upper := "Disk"
	lower := "util"
	tokens, ends := splitWithEnds(upper)
	require.Len(t, tokens, 1)

	col := catalog.SysstatColumn{Upper: "Disk", Lower: "util"}
	assert.True(t, headerMatch(tokens[0], ends[0], lower, col))
	assert.False(t, headerMatch(tokens[0], ends[0], "read", col))
	assert.False(t, headerMatch(tokens[0], ends[0], "", col))
}
