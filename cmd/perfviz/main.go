package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/internal/config"
	"github.com/perfviz/perfviz/internal/ingest"
	"github.com/perfviz/perfviz/internal/inputs"
	"github.com/perfviz/perfviz/internal/logger"
	"github.com/perfviz/perfviz/internal/render"
	"github.com/perfviz/perfviz/internal/table"
)

// Version is set at build time
var Version = "dev"

// unitResult is one line of the end-of-run summary.
type unitResult struct {
	Name     string
	Kind     string
	Charts   int
	Warnings int
	Err      error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	inputFlag := flag.String("input", "", "input file or directory (overrides config)")
	outputFlag := flag.String("output", "", "result directory (overrides config)")
	sortByName := flag.Bool("sort-by-name", false, "sort chart legends alphabetically instead of by relevance")
	flag.Parse()

	if *inputFlag != "" {
		cfg.Input.Path = *inputFlag
	}
	if *outputFlag != "" {
		cfg.Output.Directory = *outputFlag
	}
	if *sortByName {
		cfg.Chart.SortColumnsByName = true
	}
	if cfg.Input.Path == "" && flag.NArg() > 0 {
		cfg.Input.Path = flag.Arg(0)
	}
	if cfg.Input.Path == "" {
		fmt.Fprintln(os.Stderr, "No input given. Pass a dump file, bundle directory or archive.")
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Str("input", cfg.Input.Path).Msg("Starting perfviz...")

	if err := prepareOutputDir(cfg); err != nil {
		log.Error().Err(err).Msg("Cannot prepare the result directory")
		os.Exit(1)
	}

	results := processInput(cfg)
	printSummary(results)

	warnings, errors := logger.GetTally().Snapshot()
	log.Info().Int("warnings", warnings).Int("errors", errors).Msg("Run finished")

	for _, r := range results {
		if r.Err != nil {
			os.Exit(1)
		}
	}
}

func prepareOutputDir(cfg *config.Config) error {
	dir := cfg.Output.Directory
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("result path %q is not a directory", dir)
		}
		if !cfg.Output.Overwrite {
			return fmt.Errorf("result directory %q exists and output.overwrite is off", dir)
		}
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// processInput opens the bundle and dispatches it by kind. Every returned
// result covers one processed unit, usually one node.
func processInput(cfg *config.Config) []unitResult {
	bundle, err := inputs.Open(cfg.Input.Path)
	if err != nil {
		log.Error().Err(err).Str("input", cfg.Input.Path).Msg("Cannot open the input")
		return []unitResult{{Name: cfg.Input.Path, Kind: "unknown", Err: err}}
	}
	defer bundle.Close()

	switch bundle.Kind {
	case ingest.KindPerfstat:
		return processPerfstat(cfg, bundle)
	case ingest.KindASUPXML:
		return []unitResult{processASUPXML(cfg, bundle)}
	case ingest.KindASUPJSON:
		return []unitResult{processASUPJSON(cfg, bundle)}
	case ingest.KindASUPHDF5:
		return []unitResult{processASUPHDF5(cfg, bundle)}
	case ingest.KindLegacyXML:
		return []unitResult{processLegacyXML(cfg, bundle)}
	default:
		err := fmt.Errorf("no processing for input kind %s", bundle.Kind)
		return []unitResult{{Name: cfg.Input.Path, Kind: bundle.Kind.String(), Err: err}}
	}
}

// processPerfstat handles a bundle of node dumps, one collector per node,
// concurrently. Nothing is shared between nodes, so only the worker limit
// couples them.
func processPerfstat(cfg *config.Config, bundle *inputs.Bundle) []unitResult {
	nodes := map[string]inputs.ClusterNode{}
	if bundle.ConsoleLog != "" {
		parsed, err := inputs.ReadConsoleLogFile(bundle.ConsoleLog)
		if err != nil {
			log.Info().Err(err).Msg("Cannot read the console log, node addresses stay unresolved")
		} else {
			nodes = parsed
		}
	}

	results := make([]unitResult, len(bundle.NodeFiles))
	var g errgroup.Group
	if cfg.Chart.Workers > 0 {
		g.SetLimit(cfg.Chart.Workers)
	}
	for i, nf := range bundle.NodeFiles {
		g.Go(func() error {
			name := nf.Address
			if cn, ok := nodes[nf.Address]; ok {
				name = cn.Node
			}
			prefix := name
			if len(bundle.NodeFiles) == 1 {
				prefix = ""
			}
			results[i] = processNodeFile(cfg, nf.Path, name, prefix)
			return nil
		})
	}
	g.Wait()
	return results
}

func processNodeFile(cfg *config.Config, path, name, prefix string) unitResult {
	result := unitResult{Name: name, Kind: ingest.KindPerfstat.String()}

	f, err := os.Open(path)
	if err != nil {
		result.Err = err
		return result
	}
	defer f.Close()

	sink := table.NewCollector()
	var diag ingest.Diagnostics
	parser := ingest.NewPerfstat(sink, &diag)
	if err := parser.Parse(f); err != nil {
		result.Err = err
		result.Warnings = diag.Total()
		return result
	}

	charts := sink.Flatten()
	table.SortCharts(charts, cfg.Chart.SortColumnsByName)

	views := render.BuildViews(prefix, charts)
	result.Charts = len(views)
	result.Warnings = diag.Total()
	result.Err = emit(cfg, name, views)
	return result
}

func processASUPXML(cfg *config.Config, bundle *inputs.Bundle) unitResult {
	result := unitResult{Name: filepath.Base(cfg.Input.Path), Kind: ingest.KindASUPXML.String()}

	sink := table.NewCollector()
	var diag ingest.Diagnostics
	adapter := ingest.NewASUPXML(sink, &diag)

	title := result.Name
	if bundle.HeadersFile != "" {
		headers, err := inputs.ReadHeadersFile(bundle.HeadersFile)
		if err != nil {
			log.Info().Err(err).Msg("Cannot read the bundle headers, timezone stays unresolved")
		} else {
			if headers.Timezone != "" {
				adapter.SetZone(headers.Timezone)
			}
			if headers.Node != "" {
				title = headers.Cluster + " " + headers.Node
				result.Name = headers.Node
			}
		}
	}

	if err := parseFile(bundle.InfoFile, adapter.ParseInfo); err != nil {
		result.Err = err
		return result
	}
	for _, path := range bundle.DataFiles {
		if err := parseFile(path, adapter.ParseData); err != nil {
			result.Err = err
			return result
		}
	}
	adapter.Finish()

	return finishUnit(cfg, result, sink, &diag, title, adapter.Derived())
}

func processASUPJSON(cfg *config.Config, bundle *inputs.Bundle) unitResult {
	result := unitResult{Name: filepath.Base(cfg.Input.Path), Kind: ingest.KindASUPJSON.String()}

	sink := table.NewCollector()
	var diag ingest.Diagnostics
	adapter := ingest.NewASUPJSON(sink, &diag)

	for _, path := range bundle.JSONFiles {
		if err := parseFile(path, adapter.ParseFile); err != nil {
			result.Err = err
			return result
		}
	}
	adapter.Finish()

	title := result.Name
	if cluster, node := adapter.Identity(); node != "" {
		title = cluster + " " + node
		result.Name = node
	}
	return finishUnit(cfg, result, sink, &diag, title, adapter.Derived())
}

func processASUPHDF5(cfg *config.Config, bundle *inputs.Bundle) unitResult {
	result := unitResult{Name: filepath.Base(cfg.Input.Path), Kind: ingest.KindASUPHDF5.String()}

	sink := table.NewCollector()
	var diag ingest.Diagnostics
	adapter := ingest.NewASUPHDF5(sink, &diag)

	if err := adapter.ParseFile(bundle.HDF5File); err != nil {
		result.Err = err
		return result
	}
	adapter.Finish()

	title := result.Name
	if node := adapter.NodeName(); node != "" {
		title = node
		result.Name = node
	}
	return finishUnit(cfg, result, sink, &diag, title, adapter.Derived())
}

func processLegacyXML(cfg *config.Config, bundle *inputs.Bundle) unitResult {
	result := unitResult{Name: filepath.Base(cfg.Input.Path), Kind: ingest.KindLegacyXML.String()}

	sink := table.NewCollector()
	var diag ingest.Diagnostics
	adapter := ingest.NewLegacyXML(sink, &diag)

	if err := parseFile(bundle.InfoFile, adapter.ParseInfo); err != nil {
		result.Err = err
		return result
	}
	for _, path := range bundle.DataFiles {
		if err := parseFile(path, adapter.ParseData); err != nil {
			result.Err = err
			return result
		}
	}
	adapter.Finish()

	return finishUnit(cfg, result, sink, &diag, result.Name, nil)
}

func parseFile(path string, parse func(r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return parse(f)
}

// finishUnit flattens, derives, sorts and emits one unit's charts.
func finishUnit(cfg *config.Config, result unitResult, sink *table.Collector, diag *ingest.Diagnostics, title string, derived []catalog.DerivedChart) unitResult {
	charts := sink.Flatten()
	charts = append(charts, deriveCharts(charts, derived)...)
	table.SortCharts(charts, cfg.Chart.SortColumnsByName)

	views := render.BuildViews("", charts)
	result.Charts = len(views)
	result.Warnings = diag.Total()
	result.Err = emit(cfg, title, views)
	return result
}

// deriveCharts computes the catalog's derived charts from the flattened
// operand tables. An operand missing or empty skips the chart.
func deriveCharts(charts []table.Chart, derived []catalog.DerivedChart) []table.Chart {
	byID := make(map[string]*table.Chart, len(charts))
	for i := range charts {
		byID[charts[i].Table.ID] = &charts[i]
	}

	var out []table.Chart
	for _, d := range derived {
		num, okN := byID[d.Numerator]
		den, okD := byID[d.Denominator]
		if !okN || !okD {
			continue
		}
		flat := table.Quotient(d.ID, &num.Table, &den.Table)
		meta := num.Meta
		meta.ID = d.ID
		meta.Title = d.ID
		meta.Unit = d.Unit
		out = append(out, table.Chart{Table: flat, Meta: meta})
	}
	return out
}

// emit writes the unit's CSV files and its charts page into the result
// directory.
func emit(cfg *config.Config, title string, views []render.ChartView) error {
	dir := cfg.Output.Directory
	if err := render.WriteCSVs(dir, views); err != nil {
		return err
	}
	page := render.Page{Title: title, Charts: views}
	return render.WriteHTML(filepath.Join(dir, pageFileName(title)), page)
}

func pageFileName(title string) string {
	name := "charts"
	if title != "" {
		name = title
	}
	safe := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			safe = append(safe, r)
		default:
			safe = append(safe, '_')
		}
	}
	return string(safe) + "_charts.html"
}

func printSummary(results []unitResult) {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Unit", "Kind", "Charts", "Warnings", "Status"})
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		tw.Append([]string{r.Name, r.Kind, fmt.Sprintf("%d", r.Charts), fmt.Sprintf("%d", r.Warnings), status})
	}
	tw.Render()
}
