package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind names the source format of an input unit.
type Kind int

const (
	KindUnknown Kind = iota
	KindPerfstat
	KindASUPXML
	KindASUPJSON
	KindASUPHDF5
	KindLegacyXML
)

func (k Kind) String() string {
	switch k {
	case KindPerfstat:
		return "perfstat"
	case KindASUPXML:
		return "asup-xml"
	case KindASUPJSON:
		return "asup-json"
	case KindASUPHDF5:
		return "asup-hdf5"
	case KindLegacyXML:
		return "legacy-xml"
	default:
		return "unknown"
	}
}

// ErrUnrecognized marks input that matches no supported format.
var ErrUnrecognized = errors.New("unrecognized input format")

// ErrHDF5Batch marks a directory of binary-table exports; the format carries
// no identity record, so several files cannot be merged into one unit.
var ErrHDF5Batch = errors.New("binary-table exports cannot be batched, pass a single file")

// asupInfoFile is the unit-declaration file of a cluster-mode hourly archive.
const asupInfoFile = "CM-STATS-HOURLY-INFO.XML"

// Detect classifies an input path by extension and, for directories, by the
// companion files found inside. It never reads file contents.
func Detect(path string) (Kind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return KindUnknown, fmt.Errorf("probing input: %w", err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return KindUnknown, fmt.Errorf("probing input: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		return detectFromNames(path, names)
	}
	return detectFile(path, info.Name())
}

func detectFile(path, name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".data", ".out", ".zip":
		return KindPerfstat, nil
	case ".tgz":
		return KindASUPXML, nil
	case ".gz":
		if strings.HasSuffix(strings.ToLower(name), ".tar.gz") {
			return KindASUPXML, nil
		}
	case ".json":
		return KindASUPJSON, nil
	case ".h5", ".hdf5":
		return KindASUPHDF5, nil
	case ".xml":
		if strings.HasPrefix(name, "CM-STATS-HOURLY") {
			return KindASUPXML, nil
		}
		if strings.Contains(name, "INFO") || strings.Contains(name, "DATA") {
			return KindLegacyXML, nil
		}
	}
	return KindUnknown, fmt.Errorf("%s: %w", path, ErrUnrecognized)
}

func detectFromNames(path string, names []string) (Kind, error) {
	var hasJSON, hasPerfstat, hasLegacy, hasHDF5, hasTarball bool
	for _, name := range names {
		if name == asupInfoFile {
			return KindASUPXML, nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			hasJSON = true
		case ".data", ".out":
			hasPerfstat = true
		case ".h5", ".hdf5":
			hasHDF5 = true
		case ".tgz":
			hasTarball = true
		case ".gz":
			if strings.HasSuffix(strings.ToLower(name), ".tar.gz") {
				hasTarball = true
			}
		case ".xml":
			if strings.Contains(name, "INFO") || strings.Contains(name, "DATA") {
				hasLegacy = true
			}
		}
	}
	switch {
	case hasTarball:
		return KindASUPXML, nil
	case hasJSON:
		return KindASUPJSON, nil
	case hasPerfstat:
		return KindPerfstat, nil
	case hasLegacy:
		return KindLegacyXML, nil
	case hasHDF5:
		return KindUnknown, fmt.Errorf("%s: %w", path, ErrHDF5Batch)
	default:
		return KindUnknown, fmt.Errorf("%s: %w", path, ErrUnrecognized)
	}
}
