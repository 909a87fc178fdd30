package render

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WriteCSVs writes one values file per chart into dir. Gap cells are written
// empty, so spreadsheet tools and dygraphs both read them as missing rather
// than zero.
func WriteCSVs(dir string, views []ChartView) error {
	for _, v := range views {
		if err := writeCSV(filepath.Join(dir, v.FileName), v); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, v ChartView) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart values file: %w", err)
	}
	w := csv.NewWriter(f)

	header := append([]string{v.XLabel()}, v.Table.Columns...)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("writing chart values: %w", err)
	}

	record := make([]string, len(v.Table.Columns)+1)
	for row, label := range v.Table.RowLabels {
		record[0] = label
		for col := range v.Table.Columns {
			if value, ok := v.Table.Cell(row, col); ok {
				record[col+1] = strconv.FormatFloat(value, 'f', -1, 64)
			} else {
				record[col+1] = ""
			}
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("writing chart values: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing chart values: %w", err)
	}
	return f.Close()
}
