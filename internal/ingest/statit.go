package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/perfviz/perfviz/pkg/models"
)

// statitChart is the single chart built from statit blocks: per-disk
// utilization over time.
const statitChart = "statit:disk_statistics"

// statitRowFields is how many fields a complete disk statistics row has.
// Rows with fewer fields were broken mid-line by the dump writer and get
// rejoined with the next line.
const statitRowFields = 18

// statitParser reads the disk statistics subsection of statit blocks. Only
// the first two columns matter: the disk name and its ut% figure. This format
// is the least regular of the line-oriented blocks; the parser leans on
// literal markers and is deliberately conservative about what it accepts.
type statitParser struct {
	sink Sink
	diag *Diagnostics
	zone *ZoneResolver

	inside     bool // inside a statit block
	insideDisk bool
	counter    int // statit blocks seen, timestamps lag until found
	timestamps []models.RowKey
	lineBuffer string
	sawData    bool
}

func newStatitParser(sink Sink, diag *Diagnostics, zone *ZoneResolver) *statitParser {
	return &statitParser{sink: sink, diag: diag, zone: zone}
}

// isBlockBegin reports whether line opens a statit block and flips the parser
// into block mode if so.
func (s *statitParser) isBlockBegin(line string) bool {
	if strings.Contains(line, "---- statit ---") {
		s.counter++
		s.inside = true
		return true
	}
	return false
}

// processLine consumes one line inside a statit block.
func (s *statitParser) processLine(line string) {
	fields := strings.Fields(line)
	if s.insideDisk {
		s.processDiskRow(line, fields)
		return
	}
	if len(fields) == 0 {
		return
	}
	if len(s.timestamps) < s.counter && strings.Contains(line, "Begin: ") {
		s.collectTimestamp(line)
		return
	}
	if fields[0] == "disk" && strings.Contains(line, "ut%") {
		s.insideDisk = true
	}
}

func (s *statitParser) collectTimestamp(line string) {
	_, rest, _ := strings.Cut(line, "Begin: ")
	if t, err := s.zone.BuildDate(rest); err == nil {
		s.timestamps = append(s.timestamps, models.TimeRow(t))
		return
	}
	if len(s.timestamps) == 0 {
		s.diag.Addf("no timestamp in first statit block line %q, using default", line)
		s.timestamps = append(s.timestamps, models.TimeRow(defaultTimestamp))
		return
	}
	s.diag.Addf("no timestamp in statit block line %q, reusing last one", line)
	s.timestamps = append(s.timestamps, s.timestamps[len(s.timestamps)-1])
}

func (s *statitParser) processDiskRow(line string, fields []string) {
	if len(fields) == 0 || line == "Aggregate statistics:" || line == "Spares and other disks:" {
		s.inside = false
		s.insideDisk = false
		s.lineBuffer = ""
		return
	}

	// raid group sub headers like "/aggr0/plex0/rg0:" carry no values
	if len(fields) == 1 && strings.HasPrefix(line, "/") && strings.HasSuffix(line, ":") {
		s.lineBuffer = ""
		return
	}

	// the dump writer sometimes breaks a row across two lines
	if len(fields) < statitRowFields {
		if s.lineBuffer == "" {
			s.lineBuffer = line
			return
		}
		fields = append(strings.Fields(s.lineBuffer), fields...)
	}
	s.lineBuffer = ""

	if len(fields) < 2 || len(s.timestamps) == 0 {
		return
	}
	disk := fields[0]
	ut, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		s.diag.Addf("unparsable disk utilization %q for disk %q", fields[1], disk)
		return
	}
	s.sawData = true
	s.sink.Record(models.Observation{
		Chart:  statitChart,
		Row:    s.timestamps[len(s.timestamps)-1],
		Column: disk,
		Value:  ut,
	})
}

// breakChart marks an iteration boundary so disk graph lines do not bridge
// the gap between measurement periods.
func (s *statitParser) breakChart(iterationEnd models.RowKey) {
	if !s.sawData || iterationEnd.Time.IsZero() {
		return
	}
	s.sink.Break(statitChart, models.TimeRow(iterationEnd.Time.Add(time.Nanosecond)))
}

func (s *statitParser) emitMeta() {
	s.sink.SetMeta(statitChart, models.ChartMeta{
		ID:    "statit_disk_statistics",
		Title: "statit: disk_statistics",
		Unit:  "%",
		XAxis: models.AxisTime,
	})
}
