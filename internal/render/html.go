package render

import (
	"embed"
	"fmt"
	"html/template"
	"os"
)

//go:embed templates/charts.html.tmpl
var templates embed.FS

var chartsPage = template.Must(template.ParseFS(templates, "templates/charts.html.tmpl"))

// Page is the input of the charts page template.
type Page struct {
	Title  string
	Charts []ChartView
}

// WriteHTML renders the charts page to path. The page loads the chart values
// from the CSV files written next to it.
func WriteHTML(path string, page Page) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating charts page: %w", err)
	}
	if err := chartsPage.Execute(f, page); err != nil {
		f.Close()
		return fmt.Errorf("rendering charts page: %w", err)
	}
	return f.Close()
}
