package inputs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ClusterNode names the cluster and node a dump came from.
type ClusterNode struct {
	Cluster string
	Node    string
}

// ReadConsoleLog reads the Vserver listing of a console.log file and maps
// each node address to its cluster and node names. The listing is a block
// opened by a line starting with "Vserver", followed by a separator line;
// single-word lines inside the block name the cluster of the entries that
// follow, every other line is one "<...> <...> <address>/<mask> <node>"
// entry. A blank line or the trailing "entries were displayed" note closes
// the block.
func ReadConsoleLog(r io.Reader) (map[string]ClusterNode, error) {
	scanner := bufio.NewScanner(r)

	found := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "Vserver") {
			found = true
			break
		}
	}
	if !found {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading console log: %w", err)
		}
		return nil, fmt.Errorf("console log carries no Vserver listing")
	}
	scanner.Scan() // separator

	nodes := make(map[string]ClusterNode)
	cluster := ""
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		switch {
		case len(fields) == 0 || strings.Contains(line, "entries were displayed"):
			return nodes, scanner.Err()
		case len(fields) == 1:
			cluster = fields[0]
		case len(fields) >= 4:
			address, _, _ := strings.Cut(fields[2], "/")
			nodes[address] = ClusterNode{Cluster: cluster, Node: fields[3]}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading console log: %w", err)
	}
	return nodes, nil
}

// ReadConsoleLogFile is ReadConsoleLog on a file path.
func ReadConsoleLogFile(path string) (map[string]ClusterNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening console log: %w", err)
	}
	defer f.Close()
	return ReadConsoleLog(f)
}
