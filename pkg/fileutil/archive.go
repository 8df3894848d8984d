package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
)

// EntryKind selects how CompressEntries lays out a source in the archive.
type EntryKind string

const (
	// KindFile stores a single file at the archive root.
	KindFile EntryKind = "file"
	// KindDirectory stores a directory's contents at the archive root,
	// without nesting them under the directory's own name.
	KindDirectory EntryKind = "directory"
)

// Entry is one source for CompressEntries.
type Entry struct {
	Kind EntryKind
	Path string
	// Name overrides the archive path of a KindFile entry. Defaults to the
	// base name of Path.
	Name string
}

// FileEntry is shorthand for a KindFile entry.
func FileEntry(path string) Entry {
	return Entry{Kind: KindFile, Path: path}
}

// DirectoryEntry is shorthand for a KindDirectory entry.
func DirectoryEntry(path string) Entry {
	return Entry{Kind: KindDirectory, Path: path}
}

// CompressEntries writes a ZIP archive at dest holding entries, deflated at
// the maximum level. Directory walks are lexical so output order is stable.
// dest is removed again if anything fails.
func CompressEntries(entries []Entry, dest string) (err error) {
	for _, e := range entries {
		info, statErr := os.Stat(e.Path)
		if statErr != nil {
			return fmt.Errorf("%w: archive source %s: %w", hwerrors.ErrIO, e.Path, statErr)
		}
		switch e.Kind {
		case KindFile:
			if info.IsDir() {
				return fmt.Errorf("%w: archive source %s is a directory", hwerrors.ErrIO, e.Path)
			}
		case KindDirectory:
			if !info.IsDir() {
				return fmt.Errorf("%w: archive source %s is not a directory", hwerrors.ErrIO, e.Path)
			}
		default:
			return fmt.Errorf("%w: unknown archive entry kind %q", hwerrors.ErrIO, e.Kind)
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: creating archive %s: %w", hwerrors.ErrIO, dest, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: closing archive %s: %w", hwerrors.ErrIO, dest, closeErr)
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	aw := &archiveWriter{zw: zw, dest: dest, seen: make(map[string]bool)}
	for _, e := range entries {
		switch e.Kind {
		case KindFile:
			name := e.Name
			if name == "" {
				name = filepath.Base(e.Path)
			}
			err = aw.addFile(e.Path, name)
		case KindDirectory:
			err = aw.addDirectory(e.Path)
		}
		if err != nil {
			_ = zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finalizing archive %s: %w", hwerrors.ErrIO, dest, err)
	}
	return nil
}

type archiveWriter struct {
	zw   *zip.Writer
	dest string
	seen map[string]bool
}

func (a *archiveWriter) addDirectory(root string) error {
	destAbs, _ := filepath.Abs(a.dest)

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: walking %s: %w", hwerrors.ErrIO, p, walkErr)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == destAbs {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("%w: relative path of %s: %w", hwerrors.ErrIO, p, err)
		}
		return a.addFile(p, filepath.ToSlash(rel))
	})
}

func (a *archiveWriter) addFile(src, name string) error {
	name = path.Clean(filepath.ToSlash(name))
	if a.seen[name] {
		return fmt.Errorf("%w: duplicate archive entry %s", hwerrors.ErrIO, name)
	}
	a.seen[name] = true

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", hwerrors.ErrIO, src, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("%w: header for %s: %w", hwerrors.ErrIO, src, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("%w: archive entry %s: %w", hwerrors.ErrIO, name, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", hwerrors.ErrIO, src, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("%w: compressing %s: %w", hwerrors.ErrIO, src, err)
	}
	return nil
}
