// Package ingest reads performance-counter dumps in their various source
// formats and turns them into observation streams. Each format has its own
// adapter; all of them feed a Sink, so the table layer never needs to know
// which format the values came from.
package ingest

import (
	"fmt"

	"github.com/perfviz/perfviz/internal/logger"
	"github.com/perfviz/perfviz/pkg/models"
)

// Sink consumes the observation stream of an adapter. The table collector is
// the production implementation.
type Sink interface {
	Record(obs models.Observation)
	SetMeta(chartID string, meta models.ChartMeta)
	SetTimezone(label string)
	RenameColumn(chartID, old, new string) bool
	Break(chartID string, row models.RowKey)
	ScaleChart(chartID string, factor float64)
	DivideCell(chartID string, row models.RowKey, column string, divisor float64) bool
}

// maxDiagnostics bounds the retained warning messages per input unit.
const maxDiagnostics = 100

// Diagnostics accumulates recoverable parse problems. Adapters never abort on
// malformed sections; they note the problem here and keep going. The retained
// messages are capped, the total count is not.
type Diagnostics struct {
	messages []string
	total    int
}

// Addf records one warning and mirrors it to the log.
func (d *Diagnostics) Addf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	d.total++
	if len(d.messages) < maxDiagnostics {
		d.messages = append(d.messages, msg)
	}
	logger.Get("ingest").Warn().Msg(msg)
}

// Messages returns the retained warnings. When the cap was hit, the final
// entry summarizes how many were suppressed.
func (d *Diagnostics) Messages() []string {
	if d.total <= len(d.messages) {
		return d.messages
	}
	out := append([]string(nil), d.messages...)
	out = append(out, fmt.Sprintf("... and %d more warnings suppressed", d.total-len(d.messages)))
	return out
}

// Total returns how many warnings were recorded, including suppressed ones.
func (d *Diagnostics) Total() int {
	return d.total
}
