package table

import (
	"sort"
	"strings"

	"github.com/perfviz/perfviz/pkg/models"
)

// Chart pairs a flattened table with its labeling metadata.
type Chart struct {
	Table models.FlatTable
	Meta  models.ChartMeta
}

// Flatten converts every collected chart into its dense presentation form.
// Rows come out in key order regardless of the order they were recorded in;
// cells never written stay gaps. Charts that collected no values are skipped.
// The collector is left untouched, so Flatten is safe to call again.
func (c *Collector) Flatten() []Chart {
	out := make([]Chart, 0, len(c.order))
	for _, id := range c.order {
		ch := c.charts[id]
		if len(ch.rows) == 0 || len(ch.columns) == 0 {
			continue
		}

		keys := make([]models.RowKey, 0, len(ch.rows))
		for k := range ch.rows {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

		flat := models.FlatTable{
			ID:        id,
			Columns:   append([]string(nil), ch.columns...),
			RowLabels: make([]string, len(keys)),
			Values:    make([][]float64, len(keys)),
			Valid:     make([][]bool, len(keys)),
		}
		for i, key := range keys {
			flat.RowLabels[i] = key.String()
			flat.Values[i] = make([]float64, len(ch.columns))
			flat.Valid[i] = make([]bool, len(ch.columns))
			for col, v := range ch.rows[key] {
				flat.Values[i][col] = v
				flat.Valid[i][col] = true
			}
		}

		meta := ch.meta
		if !ch.hasMeta {
			tz := meta.Timezone
			meta = DefaultMeta(id)
			meta.Timezone = tz
		}
		out = append(out, Chart{Table: flat, Meta: meta})
	}
	return out
}

// DefaultMeta derives presentable metadata from a chart identity alone.
func DefaultMeta(id string) models.ChartMeta {
	return models.ChartMeta{
		ID:    strings.NewReplacer(":", "_", "-", "_", " ", "_").Replace(id),
		Title: strings.Replace(id, ":", ": ", 1),
	}
}
