package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/internal/logger"
	"github.com/perfviz/perfviz/pkg/models"
)

// jsonRecord is one element of the exported record array. Unlike the hourly
// archive, the export carries ready-made rates, a unit on every record and
// explicit bucket labels, so no delta or base conversion is needed.
type jsonRecord struct {
	ClusterName  string  `json:"cluster_name"`
	NodeName     string  `json:"node_name"`
	ObjectName   string  `json:"object_name"`
	InstanceName string  `json:"instance_name"`
	CounterName  string  `json:"counter_name"`
	CounterValue float64 `json:"counter_value"`
	CounterUnit  string  `json:"counter_unit"`
	Timestamp    int64   `json:"timestamp"` // epoch milliseconds
	XLabel       string  `json:"x_label"`   // bucket label for histogram records
}

// ASUPJSON reads per-record JSON exports. Several files may belong to one
// unit; they must all come from the same cluster and node.
type ASUPJSON struct {
	sink Sink
	cat  *catalog.Structured
	diag *Diagnostics
	loc  *time.Location

	units       map[string]string
	bucketIndex map[string]map[string]int // chartID -> bucket label -> index

	cluster  string
	node     string
	haveID   bool
	nodeName string
}

// NewASUPJSON builds an adapter feeding sink. Record timestamps carry no zone
// information; the machine's local zone applies, matching how the exporter
// stamps them.
func NewASUPJSON(sink Sink, diag *Diagnostics) *ASUPJSON {
	return &ASUPJSON{
		sink:        sink,
		cat:         catalog.ASUPJSON(),
		diag:        diag,
		loc:         time.Local,
		units:       make(map[string]string),
		bucketIndex: make(map[string]map[string]int),
	}
}

// ParseFile streams one record array. The first record of every file names
// cluster and node; files disagreeing with the first file are processed
// anyway, with an error logged.
func (a *ASUPJSON) ParseFile(r io.Reader) error {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading record array: %w", err)
	}

	first := true
	for dec.More() {
		var rec jsonRecord
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("decoding record: %w", err)
		}
		if first {
			first = false
			a.checkIdentity(rec)
		}
		a.addRecord(rec)
	}
	return nil
}

func (a *ASUPJSON) checkIdentity(rec jsonRecord) {
	if rec.ClusterName == "" && rec.NodeName == "" {
		a.diag.Addf("first record of a file names no cluster or node")
		return
	}
	if !a.haveID {
		a.cluster, a.node = rec.ClusterName, rec.NodeName
		a.haveID = true
		return
	}
	if a.cluster != rec.ClusterName || a.node != rec.NodeName {
		logger.Get("ingest").Error().
			Str("expected", a.cluster+"/"+a.node).
			Str("got", rec.ClusterName+"/"+rec.NodeName).
			Msg("Input files belong to different clusters or nodes, output will mix them")
	}
}

func (a *ASUPJSON) addRecord(rec jsonRecord) {
	if key, ok := a.cat.LookupOverTime(rec.ObjectName, rec.CounterName); ok {
		id := key.ChartID()
		a.rememberUnit(id, rec.CounterUnit)
		a.sink.Record(models.Observation{
			Chart:    id,
			Row:      models.TimeRow(a.recordTime(rec.Timestamp)),
			Instance: rec.InstanceName,
			Column:   rec.InstanceName,
			Value:    rec.CounterValue,
		})
		return
	}
	if key, ok := a.cat.LookupOverBucket(rec.ObjectName, rec.CounterName); ok {
		id := key.ChartID()
		a.rememberUnit(id, rec.CounterUnit)
		a.sink.Record(models.Observation{
			Chart:    id,
			Row:      models.BucketRow(a.bucketFor(id, rec.XLabel), rec.XLabel),
			Instance: rec.InstanceName,
			Column:   rec.InstanceName,
			Value:    rec.CounterValue,
		})
		return
	}
	if id, ok := a.cat.LookupGroup(rec.ObjectName, rec.CounterName); ok {
		a.rememberUnit(id, rec.CounterUnit)
		if a.nodeName == "" && strings.HasPrefix(rec.ObjectName, "system") {
			a.nodeName = rec.InstanceName
		}
		a.sink.Record(models.Observation{
			Chart:  id,
			Row:    models.TimeRow(a.recordTime(rec.Timestamp)),
			Column: rec.CounterName,
			Value:  rec.CounterValue,
		})
	}
}

func (a *ASUPJSON) recordTime(millis int64) time.Time {
	return time.Unix(millis/1000, 0).In(a.loc)
}

func (a *ASUPJSON) rememberUnit(chartID, unit string) {
	if a.units[chartID] == "" {
		a.units[chartID] = unit
	}
}

// bucketFor assigns stable indices to histogram bucket labels in order of
// first appearance, so rows sort the way the exporter emitted them.
func (a *ASUPJSON) bucketFor(chartID, label string) int {
	idx, ok := a.bucketIndex[chartID]
	if !ok {
		idx = make(map[string]int)
		a.bucketIndex[chartID] = idx
	}
	i, ok := idx[label]
	if !ok {
		i = len(idx)
		idx[label] = i
	}
	return i
}

// Finish applies unit conversions and emits chart metadata. Call after the
// last file.
func (a *ASUPJSON) Finish() {
	for _, key := range a.cat.InstancesOverTime {
		id := key.ChartID()
		a.sink.SetMeta(id, models.ChartMeta{
			ID:    chartFileID(id),
			Title: key.Object + ": " + key.Counter,
			Unit:  a.convertUnit(id),
			XAxis: models.AxisTime,
		})
	}
	for _, key := range a.cat.InstancesOverBucket {
		id := key.ChartID()
		a.sink.SetMeta(id, models.ChartMeta{
			ID:       chartFileID(id),
			Title:    key.Object + ": " + key.Counter,
			Unit:     a.convertUnit(id),
			XAxis:    models.AxisBucket,
			BarChart: true,
		})
	}
	for _, group := range a.cat.CounterGroups {
		title := group.ID
		if a.nodeName != "" && strings.HasPrefix(group.Object, "system") {
			title = a.nodeName + ": " + group.ID
		}
		a.sink.SetMeta(group.ID, models.ChartMeta{
			ID:         chartFileID(group.ID),
			Title:      title,
			Unit:       a.convertUnit(group.ID),
			XAxis:      models.AxisTime,
			PerCounter: true,
		})
	}
	a.sink.SetTimezone("local")
}

// convertUnit rescales a chart whose declared unit has a friendlier form.
func (a *ASUPJSON) convertUnit(chartID string) string {
	switch raw := a.units[chartID]; raw {
	case "B/s":
		a.sink.ScaleChart(chartID, 1e-6)
		return "Mb/s"
	case "KB/s":
		a.sink.ScaleChart(chartID, 1e-3)
		return "Mb/s"
	case "microseconds":
		a.sink.ScaleChart(chartID, 1e-3)
		return "milliseconds"
	default:
		return raw
	}
}

// Identity returns the cluster and node the records came from.
func (a *ASUPJSON) Identity() (cluster, node string) {
	return a.cluster, a.node
}

// Derived returns the derived chart declarations of the export catalog.
func (a *ASUPJSON) Derived() []catalog.DerivedChart {
	return a.cat.Derived
}
