package table

import (
	"github.com/perfviz/perfviz/pkg/models"
)

// Quotient builds a derived table as the element-wise ratio of two flattened
// tables, matching rows by label and columns by name. A cell is populated
// only where both operands have one; a zero denominator yields zero rather
// than poisoning the chart. Rows and columns keep the numerator's order.
func Quotient(id string, num, den *models.FlatTable) models.FlatTable {
	denRow := make(map[string]int, len(den.RowLabels))
	for i, label := range den.RowLabels {
		denRow[label] = i
	}
	denCol := make(map[string]int, len(den.Columns))
	for i, name := range den.Columns {
		denCol[name] = i
	}

	out := models.FlatTable{
		ID:        id,
		Columns:   append([]string(nil), num.Columns...),
		RowLabels: append([]string(nil), num.RowLabels...),
		Values:    make([][]float64, len(num.RowLabels)),
		Valid:     make([][]bool, len(num.RowLabels)),
	}
	for row := range num.RowLabels {
		out.Values[row] = make([]float64, len(num.Columns))
		out.Valid[row] = make([]bool, len(num.Columns))
		dr, rowPresent := denRow[num.RowLabels[row]]
		if !rowPresent {
			continue
		}
		for col, name := range num.Columns {
			if !num.Valid[row][col] {
				continue
			}
			dc, colPresent := denCol[name]
			if !colPresent || !den.Valid[dr][dc] {
				continue
			}
			d := den.Values[dr][dc]
			if d == 0 {
				out.Values[row][col] = 0
			} else {
				out.Values[row][col] = num.Values[row][col] / d
			}
			out.Valid[row][col] = true
		}
	}
	return out
}
