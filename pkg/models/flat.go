package models

// Axis describes what a chart's x axis counts.
type Axis int

const (
	AxisTime Axis = iota
	AxisBucket
)

func (a Axis) String() string {
	if a == AxisBucket {
		return "bucket"
	}
	return "time"
}

// FlatTable is the presentation form of one chart: ordered columns, ordered
// rows and a dense cell matrix. A false entry in Valid marks a gap - the
// explicit absence of a measurement, distinct from a zero value.
type FlatTable struct {
	ID        string
	Columns   []string
	RowLabels []string
	Values    [][]float64 // indexed [row][column]
	Valid     [][]bool    // indexed [row][column]
}

// Cell returns the value at (row, col) and whether it is populated.
func (t *FlatTable) Cell(row, col int) (float64, bool) {
	return t.Values[row][col], t.Valid[row][col]
}

// ChartMeta carries the labeling information the rendering collaborator needs
// alongside a flattened table.
type ChartMeta struct {
	ID         string // filesystem-safe identifier, e.g. "volume_avg_latency"
	Title      string // display title, e.g. "volume: avg_latency"
	Unit       string
	XAxis      Axis
	BarChart   bool   // render columns as bars instead of graph lines
	PerCounter bool   // columns are named counters rather than instances
	Timezone   string // resolved timezone label for the input unit, or "unresolved"
}
