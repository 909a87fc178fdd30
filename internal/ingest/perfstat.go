package ingest

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/internal/logger"
	"github.com/perfviz/perfviz/pkg/models"
)

// iterationMarker frames the BEGIN/END lines of one measurement iteration,
// e.g. "=-=-=-=-=-= BEGIN Iteration 1 =-=-=-=-=-= Mon Jan 01 00:00:00 GMT 2000".
const iterationMarker = "=-=-=-=-=-="

// maxLineBytes bounds scanner lines. Counter dumps contain no legitimate
// lines anywhere near this long.
const maxLineBytes = 1024 * 1024

// Perfstat reads the line-oriented dump format: per-iteration counter lines
// of the form "object:instance:counter:value<unit>", interleaved with sysstat
// and statit blocks. The whole file is streamed once, line by line.
type Perfstat struct {
	sink Sink
	cat  *catalog.PerIteration
	diag *Diagnostics
	zone *ZoneResolver

	sysstat *sysstatParser
	statit  *statitParser

	// lun uuid -> path, built from LUN Path:/LUN UUID: line pairs
	lunPaths  map[string]string
	lunBuffer string

	declaredIterations int
	startTimes         []models.RowKey
	endTimes           []models.RowKey
	begins, ends       int
}

// NewPerfstat builds an adapter feeding sink. The sysstat group catalog has
// validated composite keys, so the error from catalog.Sysstat is a programming
// error here.
func NewPerfstat(sink Sink, diag *Diagnostics) *Perfstat {
	groups, err := catalog.Sysstat()
	if err != nil {
		panic(err)
	}
	zone := NewZoneResolver()
	return &Perfstat{
		sink:     sink,
		cat:      catalog.Perfstat(),
		diag:     diag,
		zone:     zone,
		sysstat:  newSysstatParser(sink, groups, diag, zone),
		statit:   newStatitParser(sink, diag, zone),
		lunPaths: make(map[string]string),
	}
}

// Parse streams one dump file. I/O errors are fatal; structural problems in
// the content are diagnostics and parsing continues.
func (p *Perfstat) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	awaitSysstatEpoch := false

	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if p.declaredIterations == 0 {
			p.declaredIterations = declaredIterationCount(line)
			continue
		}

		if awaitSysstatEpoch {
			awaitSysstatEpoch = false
			p.sysstat.setBlockStart(line, p.lastStart())
			continue
		}

		if p.sysstat.inside {
			if !strings.HasPrefix(line, "node") && line != "" {
				// header matching is positional, pass the unstripped line
				p.sysstat.processLine(raw)
			}
			continue
		}

		if strings.Contains(line, iterationMarker) {
			switch {
			case strings.Contains(line, "BEGIN Iteration"):
				p.begins++
				p.startTimes = append(p.startTimes, p.markerTime(line, p.lastEnd()))
			case strings.Contains(line, "END Iteration"):
				p.ends++
				p.endTimes = append(p.endTimes, p.markerTime(line, p.lastStart()))
				if p.ends != p.declaredIterations {
					p.sysstat.breakCharts()
					p.statit.breakChart(p.lastEnd())
				}
			case p.sysstat.isBlockBegin(line):
				awaitSysstatEpoch = true
			}
			continue
		}

		if p.statit.inside {
			p.statit.processLine(line)
			continue
		}
		if p.statit.isBlockBegin(line) {
			continue
		}

		if len(p.startTimes) > 0 {
			p.processCounterLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading dump: %w", err)
	}

	if p.declaredIterations == 0 {
		return fmt.Errorf("no iteration count found, input is not a counter dump")
	}
	p.validateIterations()
	p.renameLUNs()
	p.emitMeta()
	p.sink.SetTimezone(p.zone.Label())
	return nil
}

// Timezone returns the zone label resolved while parsing.
func (p *Perfstat) Timezone() string {
	return p.zone.Label()
}

// declaredIterationCount extracts the planned iteration count from the file
// header, a line whose third word is the quoted count.
func declaredIterationCount(line string) int {
	if !strings.Contains(line, "ITERATIONS,") {
		return 0
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0
	}
	n, err := strconv.Atoi(strings.Trim(fields[2], `"`))
	if err != nil {
		return 0
	}
	return n
}

func (p *Perfstat) validateIterations() {
	log := logger.Get("ingest")
	switch {
	case p.declaredIterations == p.begins && p.begins == p.ends:
		log.Info().Int("iterations", p.ends).Msg("Planned number of iterations was executed correctly")
	case p.declaredIterations != p.begins:
		p.diag.Addf("dump is incomplete: %d iterations declared, %d started", p.declaredIterations, p.begins)
	default:
		p.diag.Addf("dump is incomplete: the last iteration did not terminate")
	}
}

// markerTime parses the timestamp after the second marker of a BEGIN/END
// line. A dump bug can leave the timestamp off; the fallback is the last
// timestamp seen, or a fixed default at the very start of the file.
func (p *Perfstat) markerTime(line string, fallback models.RowKey) models.RowKey {
	parts := strings.Split(line, iterationMarker)
	if len(parts) >= 3 {
		if t, err := p.zone.BuildDate(parts[2]); err == nil {
			return models.TimeRow(t)
		}
	}
	if fallback.Time.IsZero() {
		p.diag.Addf("no timestamp in first iteration marker %q, using default", line)
		return models.TimeRow(defaultTimestamp)
	}
	p.diag.Addf("no timestamp in iteration marker %q, reusing last one", line)
	return fallback
}

func (p *Perfstat) lastStart() models.RowKey {
	if len(p.startTimes) == 0 {
		return models.RowKey{}
	}
	return p.startTimes[len(p.startTimes)-1]
}

func (p *Perfstat) lastEnd() models.RowKey {
	if len(p.endTimes) == 0 {
		return models.RowKey{}
	}
	return p.endTimes[len(p.endTimes)-1]
}

// processCounterLine handles one "object:instance:counter:value<unit>" line,
// plus the LUN Path/UUID translation pairs that appear between them.
func (p *Perfstat) processCounterLine(line string) {
	if strings.Contains(line, "LUN ") {
		p.mapLUNPath(line)
		return
	}

	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return
	}
	object := parts[0]

	if object == "lun" && strings.Contains(parts[2], p.cat.LunAlign.Name) {
		p.recordHistogram(parts)
		return
	}

	aspect, ok := p.cat.Lookup(object, parts[2])
	if !ok {
		return
	}
	value, ok := p.parseValue(line, parts[3], aspect)
	if !ok {
		return
	}
	p.sink.Record(models.Observation{
		Chart:    object + ":" + aspect.Name,
		Row:      p.lastStart(),
		Instance: parts[1],
		Column:   parts[1],
		Value:    value,
	})
}

// recordHistogram handles the lun alignment counters, which are keyed by a
// bucket digit instead of time: "lun:<uuid>:read_align_histo.3:12%".
func (p *Perfstat) recordHistogram(parts []string) {
	counter := parts[2]
	bucket, err := strconv.Atoi(counter[len(counter)-1:])
	if err != nil {
		p.diag.Addf("histogram counter %q has no bucket digit", counter)
		return
	}
	value, ok := p.parseValue(strings.Join(parts, ":"), parts[3], p.cat.LunAlign)
	if !ok {
		return
	}
	p.sink.Record(models.Observation{
		Chart:    "lun:" + p.cat.LunAlign.Name,
		Row:      models.BucketRow(bucket, counter),
		Instance: parts[1],
		Column:   parts[1],
		Value:    value,
	})
}

func (p *Perfstat) parseValue(line, token string, aspect catalog.Aspect) (float64, bool) {
	token = strings.TrimSuffix(token, aspect.Unit)
	v, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
	if err != nil {
		p.diag.Addf("unparsable value in line %q: %v", line, err)
		return 0, false
	}
	if aspect.Scale != 1 {
		v = math.Round(v / aspect.Scale)
	}
	return v, true
}

// mapLUNPath collects "LUN Path: ..." / "LUN UUID: ..." line pairs. The path
// line comes first and is buffered until its uuid arrives.
func (p *Perfstat) mapLUNPath(line string) {
	switch {
	case strings.Contains(line, "LUN Path: "):
		fields := strings.Fields(line)
		if len(fields) < 3 {
			p.diag.Addf("expected a LUN path in line %q", line)
			return
		}
		p.lunBuffer = fields[2]
	case strings.Contains(line, "LUN UUID: "):
		fields := strings.Fields(line)
		if len(fields) < 3 {
			p.diag.Addf("expected a LUN uuid in line %q", line)
			return
		}
		uuid := fields[2]
		if p.lunBuffer == "" {
			logger.Get("ingest").Info().Str("uuid", uuid).Msg("LUN uuid without a preceding path line")
			return
		}
		p.lunPaths[uuid] = p.lunBuffer
		p.lunBuffer = ""
	}
}

// renameLUNs replaces LUN uuids with their paths in every lun chart. A uuid
// without a known path keeps its uuid column.
func (p *Perfstat) renameLUNs() {
	if len(p.lunPaths) == 0 {
		return
	}
	charts := []string{"lun:" + p.cat.LunAlign.Name}
	for _, aspect := range p.cat.Aspects["lun"] {
		charts = append(charts, "lun:"+aspect.Name)
	}
	for _, chart := range charts {
		for uuid, path := range p.lunPaths {
			p.sink.RenameColumn(chart, uuid, path)
		}
	}
}

func (p *Perfstat) emitMeta() {
	for _, object := range p.cat.Objects {
		for _, aspect := range p.cat.Aspects[object] {
			id := object + ":" + aspect.Name
			p.sink.SetMeta(id, models.ChartMeta{
				ID:    object + "_" + aspect.Name,
				Title: object + ": " + aspect.Name,
				Unit:  aspect.DisplayUnit,
				XAxis: models.AxisTime,
			})
		}
	}
	p.sink.SetMeta("lun:"+p.cat.LunAlign.Name, models.ChartMeta{
		ID:       "lun_" + p.cat.LunAlign.Name,
		Title:    "lun: " + p.cat.LunAlign.Name,
		Unit:     p.cat.LunAlign.DisplayUnit,
		XAxis:    models.AxisBucket,
		BarChart: true,
	})
	p.sysstat.emitMeta()
	p.statit.emitMeta()
}
