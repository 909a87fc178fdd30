package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/hdf5"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/pkg/models"
)

// hdf5Record is one row of a per-object table inside the binary export. The
// compound member names of the file's row type follow these field names.
type hdf5Record struct {
	Counter   string
	Instance  string
	XLabel    string // bucket label for histogram rows
	Timestamp int64  // epoch milliseconds
	Value     float64
}

// hdf5Series buffers the raw samples of one data series until Finish. The
// export guarantees no row order, so rates can only be computed after every
// table has been read and the samples are sorted.
type hdf5Series struct {
	chart    string
	column   string
	instance string
	samples  []sample
}

// hdf5BucketKey identifies one histogram cell series.
type hdf5BucketKey struct {
	chart    string
	bucket   string
	instance string
}

// hdf5HistoState buffers the previous sample of a histogram cell. Like the
// hourly archive, only the first interval is recorded.
type hdf5HistoState struct {
	ts    int64
	value float64
	done  bool
}

// ASUPHDF5 reads the binary-table export: a single file holding one table per
// object kind, each row a raw counter sample. The raw counters are running
// totals, so consecutive samples are converted to rates. The tables declare
// no units or bases; charts come out unlabeled and underived. Row timestamps
// carry no zone information, the machine's local zone applies.
type ASUPHDF5 struct {
	sink Sink
	cat  *catalog.Structured
	diag *Diagnostics
	loc  *time.Location

	series      map[seriesKey]*hdf5Series
	histo       map[hdf5BucketKey]*hdf5HistoState
	bucketIndex map[string]map[string]int // chartID -> bucket label -> index

	nodeName string
}

// NewASUPHDF5 builds an adapter feeding sink.
func NewASUPHDF5(sink Sink, diag *Diagnostics) *ASUPHDF5 {
	return &ASUPHDF5{
		sink:        sink,
		cat:         catalog.ASUPHDF5(),
		diag:        diag,
		loc:         time.Local,
		series:      make(map[seriesKey]*hdf5Series),
		histo:       make(map[hdf5BucketKey]*hdf5HistoState),
		bucketIndex: make(map[string]map[string]int),
	}
}

// ParseFile reads every top-level dataset of the export. Dataset names are
// the object names of the catalog; unmatched datasets are skipped.
func (a *ASUPHDF5) ParseFile(path string) error {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return fmt.Errorf("opening binary-table export: %w", err)
	}
	defer f.Close()

	n, err := f.NumObjects()
	if err != nil {
		return fmt.Errorf("reading binary-table export: %w", err)
	}
	for i := uint(0); i < n; i++ {
		name := f.ObjectNameByIndex(i)
		dset, err := f.OpenDataset(name)
		if err != nil {
			// groups and non-table nodes hold no chart data
			continue
		}
		rows, err := readHDF5Rows(dset)
		dset.Close()
		if err != nil {
			return fmt.Errorf("reading table %s: %w", name, err)
		}
		a.addTable(name, rows)
	}
	return nil
}

func readHDF5Rows(dset *hdf5.Dataset) ([]hdf5Record, error) {
	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	if len(dims) == 0 || dims[0] == 0 {
		return nil, nil
	}
	rows := make([]hdf5Record, dims[0])
	if err := dset.Read(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// addTable dispatches every row of one object's table.
func (a *ASUPHDF5) addTable(object string, rows []hdf5Record) {
	for _, rec := range rows {
		a.addRow(object, rec)
	}
}

func (a *ASUPHDF5) addRow(object string, rec hdf5Record) {
	ts := rec.Timestamp / 1000

	if key, ok := a.cat.LookupOverTime(object, rec.Counter); ok {
		a.buffer(
			seriesKey{object, rec.Counter, rec.Instance},
			key.ChartID(), rec.Instance, rec.Instance,
			sample{ts: ts, value: rec.Value},
		)
		return
	}
	if key, ok := a.cat.LookupOverBucket(object, rec.Counter); ok {
		a.addHistogramRow(key.ChartID(), rec, ts)
		return
	}
	if id, ok := a.cat.LookupGroup(object, rec.Counter); ok {
		if a.nodeName == "" && strings.HasPrefix(object, "system") {
			a.nodeName = rec.Instance
		}
		a.buffer(
			seriesKey{Object: object, Counter: rec.Counter},
			id, rec.Counter, "",
			sample{ts: ts, value: rec.Value},
		)
	}
}

func (a *ASUPHDF5) buffer(sk seriesKey, chart, column, instance string, smp sample) {
	s, ok := a.series[sk]
	if !ok {
		s = &hdf5Series{chart: chart, column: column, instance: instance}
		a.series[sk] = s
	}
	s.samples = append(s.samples, smp)
}

// addHistogramRow converts one histogram cell to a rate as soon as its second
// sample arrives; further samples of a finished cell are ignored.
func (a *ASUPHDF5) addHistogramRow(chartID string, rec hdf5Record, ts int64) {
	bk := hdf5BucketKey{chart: chartID, bucket: rec.XLabel, instance: rec.Instance}
	st, seen := a.histo[bk]
	if !seen {
		a.histo[bk] = &hdf5HistoState{ts: ts, value: rec.Value}
		return
	}
	if st.done {
		return
	}
	if ts == st.ts {
		a.diag.Addf("two histogram samples of %s bucket %s instance %s share timestamp %d, dropping one",
			chartID, rec.XLabel, rec.Instance, ts)
		return
	}
	a.sink.Record(models.Observation{
		Chart:    chartID,
		Row:      models.BucketRow(a.bucketFor(chartID, rec.XLabel), rec.XLabel),
		Instance: rec.Instance,
		Column:   rec.Instance,
		Value:    (rec.Value - st.value) / float64(ts-st.ts),
	})
	st.done = true
}

// bucketFor assigns stable indices to bucket labels in order of first
// appearance.
func (a *ASUPHDF5) bucketFor(chartID, label string) int {
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

// Finish converts the buffered series to rates, emits chart metadata and
// resolves the timezone label. Call after ParseFile.
func (a *ASUPHDF5) Finish() {
	keys := make([]seriesKey, 0, len(a.series))
	for k := range a.series {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Object != keys[j].Object {
			return keys[i].Object < keys[j].Object
		}
		if keys[i].Counter != keys[j].Counter {
			return keys[i].Counter < keys[j].Counter
		}
		return keys[i].Instance < keys[j].Instance
	})
	for _, k := range keys {
		a.flushSeries(a.series[k])
	}
	a.series = make(map[seriesKey]*hdf5Series)

	a.emitMeta()
	a.sink.SetTimezone("local")
}

// flushSeries sorts one series chronologically and records the rate between
// each pair of consecutive samples. Repeated identical samples collapse, two
// different values on one timestamp keep the first.
func (a *ASUPHDF5) flushSeries(s *hdf5Series) {
	sort.Slice(s.samples, func(i, j int) bool {
		if s.samples[i].ts != s.samples[j].ts {
			return s.samples[i].ts < s.samples[j].ts
		}
		return s.samples[i].value < s.samples[j].value
	})

	var prev sample
	have := false
	for _, cur := range s.samples {
		if have && cur.ts == prev.ts {
			if cur.value != prev.value {
				a.diag.Addf("two samples of %s column %s share timestamp %d, dropping one",
					s.chart, s.column, cur.ts)
			}
			continue
		}
		if have {
			a.sink.Record(models.Observation{
				Chart:    s.chart,
				Row:      models.TimeRow(time.Unix(cur.ts, 0).In(a.loc)),
				Instance: s.instance,
				Column:   s.column,
				Value:    (cur.value - prev.value) / float64(cur.ts-prev.ts),
			})
		}
		prev = cur
		have = true
	}
}

func (a *ASUPHDF5) emitMeta() {
	for _, key := range a.cat.InstancesOverTime {
		id := key.ChartID()
		a.sink.SetMeta(id, models.ChartMeta{
			ID:    chartFileID(id),
			Title: key.Object + ": " + key.Counter,
			XAxis: models.AxisTime,
		})
	}
	for _, key := range a.cat.InstancesOverBucket {
		id := key.ChartID()
		a.sink.SetMeta(id, models.ChartMeta{
			ID:       chartFileID(id),
			Title:    key.Object + ": " + key.Counter,
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
			XAxis:      models.AxisTime,
			PerCounter: true,
		})
	}
}

// NodeName returns the node the export came from, when one was found.
func (a *ASUPHDF5) NodeName() string {
	return a.nodeName
}

// Derived returns the derived chart declarations of the export catalog.
func (a *ASUPHDF5) Derived() []catalog.DerivedChart {
	return a.cat.Derived
}
