package inputs

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/perfviz/perfviz/internal/logger"
)

// unpackZip extracts a zip bundle into a fresh temporary directory and
// returns the directory.
func unpackZip(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening zip bundle: %w", err)
	}
	defer r.Close()

	dir, err := os.MkdirTemp("", "perfviz-")
	if err != nil {
		return "", fmt.Errorf("creating unpack directory: %w", err)
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, ok := safeJoin(dir, f.Name)
		if !ok {
			logger.Get("inputs").Warn().Str("entry", f.Name).Msg("Skipping archive entry escaping the unpack directory")
			continue
		}
		src, err := f.Open()
		if err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("reading zip entry %s: %w", f.Name, err)
		}
		err = writeEntry(target, src)
		src.Close()
		if err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

// unpackTarball extracts a gzipped tar bundle into a fresh temporary
// directory and returns the directory.
func unpackTarball(path string) (string, error) {
	dir, err := os.MkdirTemp("", "perfviz-")
	if err != nil {
		return "", fmt.Errorf("creating unpack directory: %w", err)
	}
	if err := unpackTarballInto(path, dir); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

// unpackTarballs extracts several archives into numbered subdirectories of
// one fresh temporary directory, preserving the given order, and returns the
// directory.
func unpackTarballs(paths []string) (string, error) {
	dir, err := os.MkdirTemp("", "perfviz-")
	if err != nil {
		return "", fmt.Errorf("creating unpack directory: %w", err)
	}
	for i, path := range paths {
		sub := filepath.Join(dir, fmt.Sprintf("%03d_%s", i, filepath.Base(path)))
		if err := os.Mkdir(sub, 0o755); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("creating unpack directory: %w", err)
		}
		if err := unpackTarballInto(path, sub); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func unpackTarballInto(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening tar bundle: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading tar bundle: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar bundle: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target, ok := safeJoin(dir, hdr.Name)
		if !ok {
			logger.Get("inputs").Warn().Str("entry", hdr.Name).Msg("Skipping archive entry escaping the unpack directory")
			continue
		}
		if err := writeEntry(target, tr); err != nil {
			return err
		}
	}
}

// safeJoin resolves an archive entry name below dir, rejecting entries that
// would land outside it.
func safeJoin(dir, name string) (string, bool) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return "", false
	}
	return target, true
}

func writeEntry(target string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("unpacking bundle: %w", err)
	}
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("unpacking bundle: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("unpacking bundle: %w", err)
	}
	return dst.Close()
}
