package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/perfviz/perfviz/internal/catalog"
	"github.com/perfviz/perfviz/internal/logger"
	"github.com/perfviz/perfviz/pkg/models"
)

// sysstatParser reads the one-second summary blocks. Each block starts with a
// marker line and an epoch line, then a header split over two lines, then one
// value row per second. The header columns are matched positionally: a
// sub-label in the second line belongs to the category token whose last byte
// sits directly above the sub-label's last byte.
type sysstatParser struct {
	sink   Sink
	groups []catalog.SysstatGroup
	diag   *Diagnostics
	zone   *ZoneResolver

	inside       bool
	headerNeeded bool
	buffered     string // first header line, kept unstripped
	clock        time.Time

	// resolved column bindings, filled once from the first header
	bound []boundColumn
}

// boundColumn binds one value-row field index to its chart and column label.
type boundColumn struct {
	group *catalog.SysstatGroup
	label string
	field int
}

func newSysstatParser(sink Sink, groups []catalog.SysstatGroup, diag *Diagnostics, zone *ZoneResolver) *sysstatParser {
	return &sysstatParser{
		sink:         sink,
		groups:       groups,
		diag:         diag,
		zone:         zone,
		headerNeeded: true,
	}
}

// isBlockBegin reports whether line opens a summary block and flips the
// parser into block mode if so.
func (s *sysstatParser) isBlockBegin(line string) bool {
	if strings.Contains(line, "sysstat_x_1sec") || strings.Contains(line, "-= sysstat_1sec") {
		s.inside = true
		return true
	}
	return false
}

// setBlockStart reads the block's clock origin from the line following the
// block marker, like "PERFSTAT_EPOCH: 0000000000 [Mon Jan 01 00:00:00 GMT 2000]"
// or the older "Begin: Mon Jan 01 00:00:00 GMT 2000" form. Falls back to the
// iteration start when neither parses.
func (s *sysstatParser) setBlockStart(line string, iterationStart models.RowKey) {
	if open := strings.Index(line, "["); open >= 0 {
		stamp := strings.TrimSuffix(line[open+1:], "]")
		if t, err := s.zone.BuildDate(stamp); err == nil {
			s.clock = t
			return
		}
	}
	if rest, ok := strings.CutPrefix(line, "Begin: "); ok {
		if t, err := s.zone.BuildDate(rest); err == nil {
			s.clock = t
			return
		}
	}
	s.diag.Addf("no timestamp in summary block line %q, using the iteration start", line)
	s.clock = iterationStart.Time
}

// processLine consumes one line inside a block: the two header lines while
// the header is unresolved, value rows afterwards, and the terminator.
func (s *sysstatParser) processLine(raw string) {
	line := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(line, "--"):
		s.inside = false
		s.buffered = ""
	case strings.HasPrefix(line, "Command got killed"):
		s.inside = false
		s.buffered = ""
		logger.Get("ingest").Info().Str("line", line).Msg("summary block carries no data")
	case s.headerNeeded:
		if s.buffered == "" {
			if line != "" {
				s.buffered = raw
			}
			return
		}
		s.bindHeader(s.buffered, raw)
		s.buffered = ""
		s.headerNeeded = false
	default:
		s.processValueRow(line)
	}
}

// bindHeader matches both header lines against the group catalog and stores
// the resulting field bindings. The header repeats identically in every
// block, so this runs once per file.
func (s *sysstatParser) bindHeader(upper, lower string) {
	tokens, ends := splitWithEnds(upper)
	for i, token := range tokens {
		for g := range s.groups {
			group := &s.groups[g]
			for _, col := range group.Columns {
				if !headerMatch(token, ends[i], lower, col) {
					continue
				}
				label := col.Upper
				if col.Lower != "" {
					label = col.Upper + "_" + col.Lower
				}
				s.bound = append(s.bound, boundColumn{group: group, label: label, field: i})
				if col.Paired != "" {
					// the paired sub-column sits in the next field and
					// cannot be found from the header on its own
					s.bound = append(s.bound, boundColumn{
						group: group,
						label: col.Upper + "_" + col.Paired,
						field: i + 1,
					})
				}
			}
		}
	}
	if len(s.bound) == 0 {
		s.diag.Addf("summary block header matched no requested columns")
	}
}

// splitWithEnds tokenizes a line and records the byte offset one past each
// token's last character.
func splitWithEnds(line string) ([]string, []int) {
	var tokens []string
	var ends []int
	start := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			if start >= 0 {
				tokens = append(tokens, line[start:i])
				ends = append(ends, i)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
		ends = append(ends, len(line))
	}
	return tokens, ends
}

// headerMatch checks a category token against a composite key: the token must
// equal the key's upper part and the lower header line must carry the key's
// lower part ending at the same offset the token ends at. A key with no lower
// part requires a blank under the token's end instead.
func headerMatch(token string, end int, lower string, col catalog.SysstatColumn) bool {
	if token != col.Upper {
		return false
	}
	want := col.Lower
	if want == "" {
		want = " "
	}
	start := end - len(want)
	if start < 0 || end > len(lower) {
		return false
	}
	return lower[start:end] == want
}

// processValueRow records one per-second row and advances the clock. Sub
// header lines repeated inside the block are skipped.
func (s *sysstatParser) processValueRow(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	// a value row starts with a number, repeated header fragments do not
	if _, err := strconv.ParseFloat(strings.Trim(fields[0], "%"), 64); err != nil {
		return
	}
	row := models.TimeRow(s.clock)
	for _, b := range s.bound {
		if b.field >= len(fields) {
			continue
		}
		token := strings.Trim(fields[b.field], "%")
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			s.diag.Addf("unparsable summary value %q in line %q", fields[b.field], line)
			continue
		}
		if b.group.Scale != 1 {
			v = math.Round(v / b.group.Scale)
		}
		s.sink.Record(models.Observation{
			Chart:  b.group.ID,
			Row:    row,
			Column: b.label,
			Value:  v,
		})
	}
	s.clock = s.clock.Add(time.Second)
}

// breakCharts marks the iteration boundary in every summary chart so graph
// lines do not bridge the gap between iterations.
func (s *sysstatParser) breakCharts() {
	if s.clock.IsZero() {
		return
	}
	row := models.TimeRow(s.clock)
	for g := range s.groups {
		s.sink.Break(s.groups[g].ID, row)
	}
	s.clock = s.clock.Add(time.Second)
}

func (s *sysstatParser) emitMeta() {
	for g := range s.groups {
		group := &s.groups[g]
		name := group.ID[strings.Index(group.ID, ":")+1:]
		s.sink.SetMeta(group.ID, models.ChartMeta{
			ID:    "sysstat_1sec_" + name,
			Title: "sysstat_1sec: " + name,
			Unit:  group.Unit,
			XAxis: models.AxisTime,
		})
	}
}
