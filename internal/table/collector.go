// Package table folds the observation streams emitted by the format adapters
// into per-chart value tables and flattens them into the dense form the
// renderers consume. The collector is not safe for concurrent use; each input
// unit gets its own.
package table

import (
	"github.com/perfviz/perfviz/internal/logger"
	"github.com/perfviz/perfviz/pkg/models"
)

// conflictLogCap bounds how many cell conflicts one collector reports.
// A systematically broken input would otherwise flood the log.
const conflictLogCap = 100

// Collector accumulates observations into sparse per-chart tables.
type Collector struct {
	charts    map[string]*chart
	order     []string
	tz        string
	conflicts int
}

type chart struct {
	id      string
	meta    models.ChartMeta
	hasMeta bool

	columns []string
	colIdx  map[string]int

	rows map[models.RowKey]map[int]float64
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{charts: make(map[string]*chart)}
}

// Record folds one observation into its chart. The first value written to a
// cell wins; a later differing value for the same cell is dropped with a
// warning. Column order is the order in which columns are first seen.
func (c *Collector) Record(obs models.Observation) {
	ch := c.chart(obs.Chart)
	col, ok := ch.colIdx[obs.Column]
	if !ok {
		col = len(ch.columns)
		ch.columns = append(ch.columns, obs.Column)
		ch.colIdx[obs.Column] = col
	}
	row, ok := ch.rows[obs.Row]
	if !ok {
		row = make(map[int]float64)
		ch.rows[obs.Row] = row
	}
	if prev, exists := row[col]; exists {
		if prev != obs.Value {
			c.conflicts++
			if c.conflicts <= conflictLogCap {
				lg := logger.Get("table")
				lg.Warn().
					Str("chart", obs.Chart).
					Str("column", obs.Column).
					Str("row", obs.Row.String()).
					Float64("kept", prev).
					Float64("dropped", obs.Value).
					Msg("Conflicting value for already populated cell")
			}
		}
		return
	}
	row[col] = obs.Value
}

// SetMeta attaches the chart's labeling metadata. The first call for a chart
// wins; repeated calls with the same metadata are the common case when several
// source sections feed one chart.
func (c *Collector) SetMeta(chartID string, meta models.ChartMeta) {
	ch := c.chart(chartID)
	if ch.hasMeta {
		return
	}
	if meta.Timezone == "" {
		meta.Timezone = c.tz
	}
	ch.meta = meta
	ch.hasMeta = true
}

// SetTimezone stamps the resolved timezone label onto every chart collected
// so far and onto the default metadata of charts created later.
func (c *Collector) SetTimezone(label string) {
	c.tz = label
	for _, id := range c.order {
		c.charts[id].meta.Timezone = label
	}
}

// RenameColumn replaces a column's display name in place, keeping its
// position. Used when a late source section supplies a readable name for an
// opaque identifier. Renaming to an already present name is refused.
func (c *Collector) RenameColumn(chartID, old, new string) bool {
	ch, ok := c.charts[chartID]
	if !ok {
		return false
	}
	idx, ok := ch.colIdx[old]
	if !ok {
		return false
	}
	if _, taken := ch.colIdx[new]; taken {
		lg := logger.Get("table")
		lg.Warn().
			Str("chart", chartID).
			Str("column", new).
			Msg("Column rename target already exists, keeping original name")
		return false
	}
	ch.columns[idx] = new
	delete(ch.colIdx, old)
	ch.colIdx[new] = idx
	return true
}

// ScaleChart multiplies every populated cell of a chart by factor. Used for
// unit conversions that are only known once a source's unit declarations have
// all been read.
func (c *Collector) ScaleChart(chartID string, factor float64) {
	ch, ok := c.charts[chartID]
	if !ok {
		return
	}
	for _, row := range ch.rows {
		for col, v := range row {
			row[col] = v * factor
		}
	}
}

// DivideCell divides one already populated cell by divisor, reporting whether
// the cell existed. A zero divisor sets the cell to zero instead of failing;
// callers use the false return to defer work until the cell appears.
func (c *Collector) DivideCell(chartID string, rowKey models.RowKey, column string, divisor float64) bool {
	ch, ok := c.charts[chartID]
	if !ok {
		return false
	}
	col, ok := ch.colIdx[column]
	if !ok {
		return false
	}
	row, ok := ch.rows[rowKey]
	if !ok {
		return false
	}
	v, ok := row[col]
	if !ok {
		return false
	}
	if divisor == 0 {
		row[col] = 0
		return true
	}
	row[col] = v / divisor
	return true
}

// Break inserts a row with no values. Flattening renders it as an all-gap
// line, which is how chart output separates measurement periods visually.
func (c *Collector) Break(chartID string, row models.RowKey) {
	ch := c.chart(chartID)
	if _, ok := ch.rows[row]; !ok {
		ch.rows[row] = make(map[int]float64)
	}
}

// Conflicts returns how many cell conflicts were dropped so far.
func (c *Collector) Conflicts() int {
	return c.conflicts
}

func (c *Collector) chart(id string) *chart {
	ch, ok := c.charts[id]
	if !ok {
		ch = &chart{
			id:     id,
			colIdx: make(map[string]int),
			rows:   make(map[models.RowKey]map[int]float64),
		}
		ch.meta.Timezone = c.tz
		c.charts[id] = ch
		c.order = append(c.order, id)
	}
	return ch
}
