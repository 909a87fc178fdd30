package ingest

import (
	"io"
	"strconv"
	"time"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/pkg/models"
)

// LegacyXML reads the deprecated 7-mode XML export. Unlike the cluster-mode
// hourly archive, its values are already rates, so no delta conversion
// applies; base counters divide their counter's raw value directly.
//
// Deprecated: supported controllers no longer produce this format. The
// adapter is kept so old bundles still render and sees no further
// development.
type LegacyXML struct {
	sink Sink
	cat  *catalog.Structured
	diag *Diagnostics
	zone *ZoneResolver

	units  map[string]string
	baseOf map[catalog.Key]string
	parked []parkedDivision
}

// NewLegacyXML builds an adapter feeding sink.
func NewLegacyXML(sink Sink, diag *Diagnostics) *LegacyXML {
	return &LegacyXML{
		sink:   sink,
		cat:    catalog.Legacy7Mode(),
		diag:   diag,
		zone:   NewZoneResolver(),
		units:  make(map[string]string),
		baseOf: make(map[catalog.Key]string),
	}
}

// ParseInfo streams the INFO file for unit and base declarations.
func (l *LegacyXML) ParseInfo(r io.Reader) error {
	return streamRows(r, l.addInfo)
}

// ParseData streams the DATA file.
func (l *LegacyXML) ParseData(r io.Reader) error {
	return streamRows(r, l.addItem)
}

func (l *LegacyXML) addInfo(row map[string]string) {
	object, counter := row["object"], row["counter"]
	if object == "" || counter == "" {
		l.diag.Addf("export info row misses object or counter tags: %v", row)
		return
	}
	if key, ok := l.cat.LookupOverTime(object, counter); ok {
		l.units[key.ChartID()] = row["unit"]
		if base := row["base"]; base != "" {
			l.baseOf[catalog.Key{Object: object, Counter: base}] = counter
		}
	}
}

func (l *LegacyXML) addItem(row map[string]string) {
	object, counter := row["object"], row["counter"]
	if object == "" || counter == "" {
		l.diag.Addf("export data row misses object or counter tags: %v", row)
		return
	}

	if key, ok := l.cat.LookupOverTime(object, counter); ok {
		rowKey, ok := l.rowKey(row["timestamp"])
		if !ok {
			return
		}
		value, err := strconv.ParseFloat(row["value"], 64)
		if err != nil {
			l.diag.Addf("export data row has unparsable value %q", row["value"])
			return
		}
		l.sink.Record(models.Observation{
			Chart:    key.ChartID(),
			Row:      rowKey,
			Instance: row["instance"],
			Column:   row["instance"],
			Value:    value,
		})
	}

	if target, ok := l.baseOf[catalog.Key{Object: object, Counter: counter}]; ok {
		rowKey, ok := l.rowKey(row["timestamp"])
		if !ok {
			return
		}
		base, err := strconv.ParseFloat(row["value"], 64)
		if err != nil {
			l.diag.Addf("export base row has unparsable value %q", row["value"])
			return
		}
		chart := object + ":" + target
		if !l.sink.DivideCell(chart, rowKey, row["instance"], base) {
			l.parked = append(l.parked, parkedDivision{
				chart: chart, row: rowKey, column: row["instance"], divisor: base,
			})
		}
	}
}

// rowKey parses the export's timestamp, which is an epoch second in newer
// exports and a textual date in older ones.
func (l *LegacyXML) rowKey(stamp string) (models.RowKey, bool) {
	if secs, err := strconv.ParseInt(stamp, 10, 64); err == nil {
		return models.TimeRow(time.Unix(secs, 0).In(l.zone.Location())), true
	}
	if t, err := l.zone.BuildDate(stamp); err == nil {
		return models.TimeRow(t), true
	}
	l.diag.Addf("export data row has unparsable timestamp %q", stamp)
	return models.RowKey{}, false
}

// Finish replays parked base divisions and emits chart metadata.
func (l *LegacyXML) Finish() {
	for _, p := range l.parked {
		if !l.sink.DivideCell(p.chart, p.row, p.column, p.divisor) {
			l.diag.Addf("base value for chart %s column %s row %s has no matching counter value",
				p.chart, p.column, p.row.String())
		}
	}
	l.parked = nil

	for _, key := range l.cat.InstancesOverTime {
		id := key.ChartID()
		l.sink.SetMeta(id, models.ChartMeta{
			ID:    chartFileID(id),
			Title: key.Object + ": " + key.Counter,
			Unit:  l.units[id],
			XAxis: models.AxisTime,
		})
	}
	label := l.zone.Label()
	if label == "" {
		label = UnresolvedZone
	}
	l.sink.SetTimezone(label)
}
