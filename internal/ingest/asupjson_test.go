package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfviz/perfviz/internal/table"
)

func jsonFixture() string {
	return `[
  {"cluster_name":"cl1","node_name":"node1","object_name":"volume","counter_name":"avg_latency",
   "instance_name":"vol0","counter_value":12000,"counter_unit":"microseconds","timestamp":1700000000000},
  {"cluster_name":"cl1","node_name":"node1","object_name":"volume","counter_name":"avg_latency",
   "instance_name":"vol0","counter_value":8000,"counter_unit":"microseconds","timestamp":1700000060000},
  {"cluster_name":"cl1","node_name":"node1","object_name":"volume","counter_name":"read_data",
   "instance_name":"vol0","counter_value":3000000,"counter_unit":"B/s","timestamp":1700000000000},
  {"cluster_name":"cl1","node_name":"node1","object_name":"lun","counter_name":"read_align_histo",
   "instance_name":"lun0","counter_value":80,"counter_unit":"%","timestamp":1700000000000,"x_label":"0"},
  {"cluster_name":"cl1","node_name":"node1","object_name":"lun","counter_name":"read_align_histo",
   "instance_name":"lun0","counter_value":15,"counter_unit":"%","timestamp":1700000000000,"x_label":"1"},
  {"cluster_name":"cl1","node_name":"node1","object_name":"system","counter_name":"nfs_ops",
   "instance_name":"node1","counter_value":5000,"counter_unit":"per_sec","timestamp":1700000000000}
]`
}

func localStamp(epoch int64) string {
	return time.Unix(epoch, 0).In(time.Local).Format("2006-01-02 15:04:05")
}

func TestASUPJSONParse(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	a := NewASUPJSON(sink, &diag)
	require.NoError(t, a.ParseFile(strings.NewReader(jsonFixture())))
	a.Finish()

	cluster, node := a.Identity()
	assert.Equal(t, "cl1", cluster)
	assert.Equal(t, "node1", node)

	charts := sink.Flatten()

	// values are already rates; microseconds come out as milliseconds
	lat := findChart(t, charts, "volume:avg_latency")
	assert.Equal(t, []string{"vol0"}, lat.Table.Columns)
	require.Len(t, lat.Table.RowLabels, 2)
	assert.Equal(t, localStamp(1700000000), lat.Table.RowLabels[0])
	v, _ := lat.Table.Cell(0, 0)
	assert.InDelta(t, 12.0, v, 1e-9)
	v, _ = lat.Table.Cell(1, 0)
	assert.InDelta(t, 8.0, v, 1e-9)
	assert.Equal(t, "milliseconds", lat.Meta.Unit)
	assert.Equal(t, "local", lat.Meta.Timezone)

	rd := findChart(t, charts, "volume:read_data")
	v, _ = rd.Table.Cell(0, 0)
	assert.InDelta(t, 3.0, v, 1e-9)
	assert.Equal(t, "Mb/s", rd.Meta.Unit)

	histo := findChart(t, charts, "lun:read_align_histo")
	assert.Equal(t, []string{"0", "1"}, histo.Table.RowLabels)
	assert.True(t, histo.Meta.BarChart)
	v, _ = histo.Table.Cell(1, 0)
	assert.Equal(t, 15.0, v)

	iops := findChart(t, charts, "IOPS")
	assert.Equal(t, []string{"nfs_ops"}, iops.Table.Columns)
	assert.Equal(t, "node1: IOPS", iops.Meta.Title)
	assert.True(t, iops.Meta.PerCounter)

	assert.Equal(t, 0, diag.Total())
}

func TestASUPJSONIdentityMismatchContinues(t *testing.T) {
	first := `[{"cluster_name":"cl1","node_name":"node1","object_name":"volume",
  "counter_name":"total_ops","instance_name":"vol0","counter_value":10,
  "counter_unit":"per_sec","timestamp":1700000000000}]`
	second := `[{"cluster_name":"cl2","node_name":"node9","object_name":"volume",
  "counter_name":"total_ops","instance_name":"vol0","counter_value":20,
  "counter_unit":"per_sec","timestamp":1700000060000}]`

	sink := table.NewCollector()
	var diag Diagnostics
	a := NewASUPJSON(sink, &diag)
	require.NoError(t, a.ParseFile(strings.NewReader(first)))
	require.NoError(t, a.ParseFile(strings.NewReader(second)))
	a.Finish()

	// the first file wins the identity, the second is still processed
	cluster, node := a.Identity()
	assert.Equal(t, "cl1", cluster)
	assert.Equal(t, "node1", node)

	ops := findChart(t, sink.Flatten(), "volume:total_ops")
	assert.Len(t, ops.Table.RowLabels, 2)
}

func TestASUPJSONRejectsNonArray(t *testing.T) {
	sink := table.NewCollector()
	var diag Diagnostics
	a := NewASUPJSON(sink, &diag)
	err := a.ParseFile(strings.NewReader(`{"not":"an array"}`))
	// the opening token decodes, the first record does not
	assert.Error(t, err)
}
