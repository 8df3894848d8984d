// Package fileutil is the filesystem gateway used by every packaging stage.
//
// It owns no business logic: each helper maps an operating-system failure
// onto the shared error taxonomy in pkg/errors and returns it.
package fileutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
)

const (
	FilePerms = 0o644
	DirPerms  = 0o755
)

// Exists reports whether path names an existing file or directory.
// Any stat failure counts as absence.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadJSON decodes the JSON document at path into a fresh T.
func ReadJSON[T any](path string) (T, error) {
	var value T

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return value, fmt.Errorf("%w: %s", hwerrors.ErrNotFound, path)
		}
		return value, fmt.Errorf("%w: reading %s: %w", hwerrors.ErrIO, path, err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("%w: %s: %w", hwerrors.ErrParse, path, err)
	}
	return value, nil
}

// MarshalJSON renders value the way WriteJSON stores it: two-space indent,
// key order as emitted by the value, no HTML escaping, trailing newline.
func MarshalJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON overwrites path with the JSON encoding of value.
func WriteJSON(path string, value any) error {
	data, err := MarshalJSON(value)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", hwerrors.ErrIO, path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
		return fmt.Errorf("%w: creating parent of %s: %w", hwerrors.ErrIO, path, err)
	}
	if err := os.WriteFile(path, data, FilePerms); err != nil {
		return fmt.Errorf("%w: writing %s: %w", hwerrors.ErrIO, path, err)
	}
	return nil
}

// CopyFile copies a regular file from src to dst, creating dst's parent
// directories and replacing any existing dst.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", hwerrors.ErrNotFound, src)
		}
		return fmt.Errorf("%w: stat %s: %w", hwerrors.ErrIO, src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", hwerrors.ErrIO, src)
	}

	if err := cp.Copy(src, dst, cp.Options{Sync: true}); err != nil {
		return fmt.Errorf("%w: copying %s to %s: %w", hwerrors.ErrIO, src, dst, err)
	}
	return nil
}

// ClearDirectory removes path and everything below it. A missing path is
// not an error. On failure the directory may be partially removed.
func ClearDirectory(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: stat %s: %w", hwerrors.ErrIO, path, err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: clearing %s: %w", hwerrors.ErrIO, path, err)
	}
	return nil
}
