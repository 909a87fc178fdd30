// Package render emits the presentation artifacts of one input unit: a CSV
// file per chart and a single HTML page drawing them.
package render

import (
	"github.com/perfviz/perfviz/internal/table"
	"github.com/perfviz/perfviz/pkg/models"
)

// ChartView is one chart prepared for emission: the flattened table, its
// labeling metadata and the CSV file name the HTML page will load it from.
type ChartView struct {
	Table models.FlatTable
	Meta  models.ChartMeta

	FileName string
}

// XLabel is the x-axis caption: the bucket axis name for histograms, the
// resolved timezone for time series.
func (v ChartView) XLabel() string {
	if v.Meta.XAxis == models.AxisBucket {
		return "bucket"
	}
	if v.Meta.Timezone == "" {
		return "time"
	}
	return "time (" + v.Meta.Timezone + ")"
}

// BuildViews pairs flattened charts with their emission names. prefix
// distinguishes the nodes of a multi-node input and may be empty; it ends up
// in the CSV file names so one result directory can hold several nodes.
func BuildViews(prefix string, charts []table.Chart) []ChartView {
	views := make([]ChartView, 0, len(charts))
	for _, c := range charts {
		meta := c.Meta
		if prefix != "" {
			meta.Title = prefix + " " + meta.Title
		}
		views = append(views, ChartView{
			Table:    c.Table,
			Meta:     meta,
			FileName: fileNamePrefix(prefix) + meta.ID + "_chart_values.csv",
		})
	}
	return views
}

func fileNamePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "_"
}
