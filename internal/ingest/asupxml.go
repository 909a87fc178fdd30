package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/pkg/models"
)

// seriesKey identifies one data series inside the structured formats.
type seriesKey struct {
	Object   string
	Counter  string
	Instance string
}

// sample buffers the previous total of a monotonically growing counter.
type sample struct {
	ts    int64
	value float64
}

// histoSample buffers the previous bucket vector of a histogram counter. Once
// one interval has been recorded the series is done; later samples would
// overwrite the recorded interval with no benefit.
type histoSample struct {
	ts     int64
	values []float64
	done   bool
}

// parkedDivision is a base division that arrived before the cell it divides.
type parkedDivision struct {
	chart   string
	row     models.RowKey
	column  string
	divisor float64
}

// ASUPXML reads the hourly-archive pair of a cluster-mode support bundle: an
// INFO file declaring units, base counters and histogram bucket labels, and
// one or more DATA files of raw counter rows. The raw counters are running
// totals, so consecutive samples are converted to rates. Base counters divide
// the value of the counter they are declared for; a base arriving before its
// counter is parked and replayed in Finish.
type ASUPXML struct {
	sink Sink
	cat  *catalog.Structured
	diag *Diagnostics

	loc     *time.Location
	tzLabel string

	units       map[string]string
	histoLabels map[catalog.Key][]string
	baseOf      map[catalog.Key]string // (object, base counter) -> counter
	histoBaseOf map[catalog.Key]string

	samples     map[seriesKey]sample
	histoDone   map[seriesKey]*histoSample
	baseSamples map[seriesKey]sample
	parked      []parkedDivision

	nodeName string
}

// asupSystemObject is the single-instance object the node name is read from.
const asupSystemObject = "system:constituent"

// NewASUPXML builds an adapter feeding sink.
func NewASUPXML(sink Sink, diag *Diagnostics) *ASUPXML {
	return &ASUPXML{
		sink:        sink,
		cat:         catalog.ASUPXML(),
		diag:        diag,
		loc:         time.Local,
		tzLabel:     UnresolvedZone,
		units:       make(map[string]string),
		histoLabels: make(map[catalog.Key][]string),
		baseOf:      make(map[catalog.Key]string),
		histoBaseOf: make(map[catalog.Key]string),
		samples:     make(map[seriesKey]sample),
		histoDone:   make(map[seriesKey]*histoSample),
		baseSamples: make(map[seriesKey]sample),
	}
}

// SetZone pins the archive's timezone from the bundle header's abbreviation.
func (a *ASUPXML) SetZone(abbr string) {
	z := NewZoneResolver()
	if z.Pin(abbr) {
		a.loc = z.Location()
		a.tzLabel = abbr
	} else {
		a.diag.Addf("bundle header declares unknown timezone %q", abbr)
	}
}

// ParseInfo streams the INFO file and collects unit, base and bucket-label
// declarations.
func (a *ASUPXML) ParseInfo(r io.Reader) error {
	return streamRows(r, a.addInfo)
}

// ParseData streams one DATA file. Call once per file, in chronological file
// order, then Finish once.
func (a *ASUPXML) ParseData(r io.Reader) error {
	return streamRows(r, a.addData)
}

// streamRows decodes ROW elements one at a time, passing each as a map of
// child tag to text. The files are far too large to load as a tree.
func streamRows(r io.Reader, handle func(map[string]string)) error {
	dec := xml.NewDecoder(r)
	row := make(map[string]string)
	var field string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding archive xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			field = t.Name.Local
			text.Reset()
		case xml.CharData:
			if field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "ROW":
				handle(row)
				row = make(map[string]string)
			case field:
				row[field] = text.String()
				field = ""
			}
		}
	}
}

func (a *ASUPXML) addInfo(row map[string]string) {
	object, counter := row["object"], row["counter"]
	if object == "" || counter == "" {
		a.diag.Addf("archive info row misses object or counter tags: %v", row)
		return
	}

	if key, ok := a.cat.LookupOverTime(object, counter); ok {
		a.units[key.ChartID()] = row["unit"]
		if base := row["base"]; base != "" {
			a.baseOf[catalog.Key{Object: object, Counter: base}] = counter
		}
		return
	}
	if key, ok := a.cat.LookupOverBucket(object, counter); ok {
		a.units[key.ChartID()] = row["unit"]
		a.histoLabels[key] = strings.Split(row["label1"], ",")
		if base := row["base"]; base != "" {
			a.histoBaseOf[catalog.Key{Object: object, Counter: base}] = counter
		}
		return
	}
	if id, ok := a.cat.LookupGroup(object, counter); ok {
		a.units[id] = row["unit"]
	}
}

func (a *ASUPXML) addData(row map[string]string) {
	object := row["object"]
	counter := row["counter"]
	if object == "" || counter == "" {
		a.diag.Addf("archive data row misses object or counter tags: %v", row)
		return
	}
	if a.nodeName == "" && object == asupSystemObject {
		a.nodeName = row["instance"]
	}

	if key, ok := a.cat.LookupOverTime(object, counter); ok {
		a.addTimeSeries(key, row)
		return
	}
	if key, ok := a.cat.LookupOverBucket(object, counter); ok {
		a.addHistogram(key, row)
		return
	}
	if id, ok := a.cat.LookupGroup(object, counter); ok {
		a.addGroupSeries(id, object, counter, row)
		return
	}
	a.addBase(object, counter, row)
}

// rowFields pulls the shared timestamp/instance/value triple out of a row.
func (a *ASUPXML) rowFields(row map[string]string) (int64, string, string, bool) {
	ts, err := strconv.ParseInt(row["timestamp"], 10, 64)
	if err != nil {
		a.diag.Addf("archive data row has unparsable timestamp %q", row["timestamp"])
		return 0, "", "", false
	}
	return ts, row["instance"], row["value"], true
}

func (a *ASUPXML) addTimeSeries(key catalog.Key, row map[string]string) {
	ts, instance, raw, ok := a.rowFields(row)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		a.diag.Addf("archive data row has unparsable value %q", raw)
		return
	}
	sk := seriesKey{key.Object, key.Counter, instance}
	if prev, seen := a.samples[sk]; seen {
		if ts == prev.ts {
			a.diag.Addf("two samples of %s instance %s share timestamp %d, dropping one",
				key.ChartID(), instance, ts)
			return
		}
		rate := (value - prev.value) / float64(ts-prev.ts)
		a.sink.Record(models.Observation{
			Chart:    key.ChartID(),
			Row:      models.TimeRow(time.Unix(ts, 0).In(a.loc)),
			Instance: instance,
			Column:   instance,
			Value:    rate,
		})
	}
	a.samples[sk] = sample{ts: ts, value: value}
}

func (a *ASUPXML) addHistogram(key catalog.Key, row map[string]string) {
	ts, instance, raw, ok := a.rowFields(row)
	if !ok {
		return
	}
	values, ok := a.parseBucketVector(raw)
	if !ok {
		return
	}
	sk := seriesKey{key.Object, key.Counter, instance}
	prev, seen := a.histoDone[sk]
	if !seen {
		a.histoDone[sk] = &histoSample{ts: ts, values: values}
		return
	}
	if prev.done {
		return
	}
	if ts == prev.ts {
		a.diag.Addf("two histogram samples of %s instance %s share timestamp %d, dropping one",
			key.ChartID(), instance, ts)
		return
	}
	labels := a.histoLabels[key]
	interval := float64(ts - prev.ts)
	for i := range values {
		if i >= len(prev.values) || i >= len(labels) {
			break
		}
		a.sink.Record(models.Observation{
			Chart:    key.ChartID(),
			Row:      models.BucketRow(i, strings.TrimSpace(labels[i])),
			Instance: instance,
			Column:   instance,
			Value:    (values[i] - prev.values[i]) / interval,
		})
	}
	prev.done = true
}

func (a *ASUPXML) parseBucketVector(raw string) ([]float64, bool) {
	parts := strings.Split(raw, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			a.diag.Addf("archive histogram row has unparsable value %q", raw)
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func (a *ASUPXML) addGroupSeries(chartID, object, counter string, row map[string]string) {
	ts, _, raw, ok := a.rowFields(row)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		a.diag.Addf("archive data row has unparsable value %q", raw)
		return
	}
	sk := seriesKey{Object: object, Counter: counter}
	if prev, seen := a.samples[sk]; seen {
		if ts == prev.ts {
			a.diag.Addf("two samples of %s:%s share timestamp %d, dropping one", object, counter, ts)
			return
		}
		a.sink.Record(models.Observation{
			Chart:  chartID,
			Row:    models.TimeRow(time.Unix(ts, 0).In(a.loc)),
			Column: counter,
			Value:  (value - prev.value) / float64(ts-prev.ts),
		})
	}
	a.samples[sk] = sample{ts: ts, value: value}
}

// addBase handles rows whose counter is declared as the base of another
// counter. The base rate divides the already recorded value of its counter;
// bases seen before their counters are parked.
func (a *ASUPXML) addBase(object, counter string, row map[string]string) {
	bk := catalog.Key{Object: object, Counter: counter}
	if target, ok := a.baseOf[bk]; ok {
		ts, instance, raw, fieldsOK := a.rowFields(row)
		if !fieldsOK {
			return
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			a.diag.Addf("archive base row has unparsable value %q", raw)
			return
		}
		sk := seriesKey{object, counter, instance}
		if prev, seen := a.baseSamples[sk]; seen {
			if ts == prev.ts {
				a.diag.Addf("two base samples of %s:%s instance %s share timestamp %d, dropping one",
					object, counter, instance, ts)
				return
			}
			rate := (value - prev.value) / float64(ts-prev.ts)
			a.divideOrPark(object+":"+target, models.TimeRow(time.Unix(ts, 0).In(a.loc)), instance, rate)
		}
		a.baseSamples[sk] = sample{ts: ts, value: value}
		return
	}

	if target, ok := a.histoBaseOf[bk]; ok {
		ts, instance, raw, fieldsOK := a.rowFields(row)
		if !fieldsOK {
			return
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			a.diag.Addf("archive base row has unparsable value %q", raw)
			return
		}
		sk := seriesKey{object, counter, instance}
		if prev, seen := a.baseSamples[sk]; seen && prev.ts != -1 {
			if ts == prev.ts {
				return
			}
			rate := (value - prev.value) / float64(ts-prev.ts)
			labels := a.histoLabels[catalog.Key{Object: object, Counter: target}]
			for i, label := range labels {
				a.divideOrPark(object+":"+target, models.BucketRow(i, strings.TrimSpace(label)), instance, rate)
			}
			a.baseSamples[sk] = sample{ts: -1}
			return
		}
		if !seen {
			a.baseSamples[sk] = sample{ts: ts, value: value}
		}
	}
}

func (a *ASUPXML) divideOrPark(chart string, row models.RowKey, column string, divisor float64) {
	if !a.sink.DivideCell(chart, row, column, divisor) {
		a.parked = append(a.parked, parkedDivision{chart: chart, row: row, column: column, divisor: divisor})
	}
}

// Finish replays parked base divisions, applies the unit conversions that
// only the complete unit declarations allow, and emits chart metadata. Call
// after the last DATA file.
func (a *ASUPXML) Finish() {
	for _, p := range a.parked {
		if !a.sink.DivideCell(p.chart, p.row, p.column, p.divisor) {
			a.diag.Addf("base value for chart %s column %s row %s has no matching counter value",
				p.chart, p.column, p.row.String())
		}
	}
	a.parked = nil

	a.emitMeta()
	a.sink.SetTimezone(a.tzLabel)
}

// displayUnit converts a raw declared unit into the chart unit, scaling the
// chart values when the conversion demands it.
func (a *ASUPXML) displayUnit(chartID, raw string) string {
	switch raw {
	case "percent":
		a.sink.ScaleChart(chartID, 100)
		return "%"
	case "b_per_sec":
		a.sink.ScaleChart(chartID, 1e-6)
		return "Mb/s"
	case "kb_per_sec":
		a.sink.ScaleChart(chartID, 1e-3)
		return "Mb/s"
	default:
		return raw
	}
}

func (a *ASUPXML) emitMeta() {
	for _, key := range a.cat.InstancesOverTime {
		id := key.ChartID()
		a.sink.SetMeta(id, models.ChartMeta{
			ID:       chartFileID(id),
			Title:    key.Object + ": " + key.Counter,
			Unit:     a.displayUnit(id, a.units[id]),
			XAxis:    models.AxisTime,
			Timezone: a.tzLabel,
		})
	}
	for _, key := range a.cat.InstancesOverBucket {
		id := key.ChartID()
		a.sink.SetMeta(id, models.ChartMeta{
			ID:       chartFileID(id),
			Title:    key.Object + ": " + key.Counter,
			Unit:     a.displayUnit(id, a.units[id]),
			XAxis:    models.AxisBucket,
			BarChart: true,
			Timezone: a.tzLabel,
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
			Unit:       a.displayUnit(group.ID, a.units[group.ID]),
			XAxis:      models.AxisTime,
			PerCounter: true,
			Timezone:   a.tzLabel,
		})
	}
}

// NodeName returns the node the archive came from, when one was found.
func (a *ASUPXML) NodeName() string {
	return a.nodeName
}

// Derived returns the derived chart declarations of the archive catalog.
func (a *ASUPXML) Derived() []catalog.DerivedChart {
	return a.cat.Derived
}

// chartFileID turns a chart identity into a filesystem-safe identifier.
func chartFileID(id string) string {
	return strings.NewReplacer(":", "_", "-", "_", " ", "_", "/", "_").Replace(id)
}
