package inputs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Headers carries the identifying fields of a support bundle's HEADERS file.
// Timezone is the abbreviation from the generation timestamp, like "CET".
type Headers struct {
	Node     string
	Cluster  string
	Timezone string
}

// ReadHeaders extracts node name, cluster name and timezone abbreviation
// from a HEADERS file. Missing fields stay empty.
func ReadHeaders(r io.Reader) (Headers, error) {
	var h Headers
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "X-Netapp-asup-hostname:"):
			h.Node = strings.TrimSpace(strings.Replace(line, "X-Netapp-asup-hostname:", "", 1))
		case strings.Contains(line, "X-Netapp-asup-cluster-name:"):
			h.Cluster = strings.TrimSpace(strings.Replace(line, "X-Netapp-asup-cluster-name:", "", 1))
		case strings.Contains(line, "X-Netapp-asup-generated-on:"):
			// the timestamp ends "... 15:04:05 CET 2026"; the zone is the
			// second to last word
			fields := strings.Fields(strings.Replace(line, "X-Netapp-asup-generated-on:", "", 1))
			if len(fields) >= 2 {
				h.Timezone = fields[len(fields)-2]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Headers{}, fmt.Errorf("reading bundle headers: %w", err)
	}
	return h, nil
}

// ReadHeadersFile is ReadHeaders on a file path.
func ReadHeadersFile(path string) (Headers, error) {
	f, err := os.Open(path)
	if err != nil {
		return Headers{}, fmt.Errorf("opening bundle headers: %w", err)
	}
	defer f.Close()
	return ReadHeaders(f)
}
