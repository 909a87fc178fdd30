// Package inputs turns a user-supplied path into the concrete files of one
// input bundle: it classifies the path, unpacks archives into a temporary
// directory and locates the node dumps, archive pairs or record exports
// inside, together with their companion metadata files.
package inputs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/perfviz/perfviz/internal/ingest"
	"github.com/perfviz/perfviz/internal/logger"
)

// NodeFile is one controller dump inside a bundle. The address is the name
// of the directory the dump sits in; bundles collected from a cluster place
// each node's dump in a directory named after the node's address.
type NodeFile struct {
	Path    string
	Address string
}

// Bundle lists the files of one classified input. Only the fields matching
// Kind are populated. Close removes the temporary directory archives were
// unpacked into; it is safe to call on unarchived bundles too.
type Bundle struct {
	Kind ingest.Kind

	NodeFiles  []NodeFile // perfstat dumps
	ConsoleLog string     // cluster and node names, empty when absent

	InfoFile    string   // archive unit declarations
	DataFiles   []string // archive counter files, in continuation order
	HeadersFile string   // bundle header, empty when absent

	JSONFiles []string

	HDF5File string // binary-table export, always a single file

	tempDir string
}

// Open classifies path, unpacks it when it is an archive and discovers the
// bundle's files. The caller owns the returned bundle and must Close it.
func Open(path string) (*Bundle, error) {
	kind, err := ingest.Detect(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("probing input: %w", err)
	}

	root := path
	b := &Bundle{Kind: kind}

	if info.IsDir() {
		// a directory of archives is one logical unit in lexical name order
		tarballs, err := tarballsIn(path)
		if err != nil {
			return nil, err
		}
		if len(tarballs) > 0 {
			if root, err = unpackTarballs(tarballs); err != nil {
				return nil, err
			}
			b.tempDir = root
		}
	} else {
		switch {
		case strings.EqualFold(filepath.Ext(path), ".zip"):
			if root, err = unpackZip(path); err != nil {
				return nil, err
			}
			b.tempDir = root
		case isTarball(path):
			if root, err = unpackTarball(path); err != nil {
				return nil, err
			}
			b.tempDir = root
		default:
			// a single plain file is its own bundle
			return b.addFile(path, filepath.Base(path))
		}
	}

	if err := b.discover(root); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Close removes the unpack directory, when there is one.
func (b *Bundle) Close() error {
	if b.tempDir == "" {
		return nil
	}
	dir := b.tempDir
	b.tempDir = ""
	return os.RemoveAll(dir)
}

func isTarball(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".tgz") || strings.HasSuffix(lower, ".tar.gz")
}

// discover walks root and sorts every recognized file into the bundle.
func (b *Bundle) discover(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		_, err = b.addFile(path, filepath.Base(filepath.Dir(path)))
		return err
	})
	if err != nil {
		return fmt.Errorf("discovering bundle files: %w", err)
	}

	// archive order first, continuation number within one archive second
	sort.Slice(b.DataFiles, func(i, j int) bool {
		di, dj := filepath.Dir(b.DataFiles[i]), filepath.Dir(b.DataFiles[j])
		if di != dj {
			return di < dj
		}
		return dataFileOrder(b.DataFiles[i]) < dataFileOrder(b.DataFiles[j])
	})
	sort.Strings(b.JSONFiles)

	switch b.Kind {
	case ingest.KindPerfstat:
		if len(b.NodeFiles) == 0 {
			return fmt.Errorf("bundle contains no node dump files")
		}
	case ingest.KindASUPXML, ingest.KindLegacyXML:
		if b.InfoFile == "" {
			return fmt.Errorf("bundle contains no INFO file")
		}
		if len(b.DataFiles) == 0 {
			return fmt.Errorf("bundle contains no DATA files")
		}
	case ingest.KindASUPJSON:
		if len(b.JSONFiles) == 0 {
			return fmt.Errorf("bundle contains no record files")
		}
	}
	return nil
}

func (b *Bundle) addFile(path, address string) (*Bundle, error) {
	name := filepath.Base(path)
	switch {
	case name == "console.log":
		b.ConsoleLog = path
	case name == "HEADERS":
		b.HeadersFile = path
	case strings.Contains(name, "INFO") && strings.EqualFold(filepath.Ext(name), ".xml"):
		if b.InfoFile != "" {
			logger.Get("inputs").Warn().
				Str("kept", b.InfoFile).Str("ignored", path).
				Msg("Bundle carries more than one INFO file")
			return b, nil
		}
		b.InfoFile = path
	case strings.Contains(name, "DATA") && strings.EqualFold(filepath.Ext(name), ".xml"):
		b.DataFiles = append(b.DataFiles, path)
	case strings.EqualFold(filepath.Ext(name), ".json"):
		b.JSONFiles = append(b.JSONFiles, path)
	case strings.EqualFold(filepath.Ext(name), ".h5"), strings.EqualFold(filepath.Ext(name), ".hdf5"):
		b.HDF5File = path
	case strings.EqualFold(filepath.Ext(name), ".data"), strings.EqualFold(filepath.Ext(name), ".out"):
		b.NodeFiles = append(b.NodeFiles, NodeFile{Path: path, Address: address})
	}
	return b, nil
}

// tarballsIn lists the gzipped tar archives directly inside dir, sorted by
// name.
func tarballsIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("probing input: %w", err)
	}
	var tarballs []string
	for _, e := range entries {
		if !e.IsDir() && isTarball(e.Name()) {
			tarballs = append(tarballs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(tarballs)
	return tarballs, nil
}

// dataFileOrder ranks DATA continuation files: the bare DATA file first, then
// numbered continuations in numeric order.
func dataFileOrder(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return 0
	}
	return n
}
