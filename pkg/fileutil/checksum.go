package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
)

// ChecksumPrefix tags digests produced by Checksum.
const ChecksumPrefix = "sha256:"

// Checksum returns the "sha256:<hex>" digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", hwerrors.ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: opening %s: %w", hwerrors.ErrIO, path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hashing %s: %w", hwerrors.ErrIO, path, err)
	}
	return ChecksumPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares the digest of path against expected. A bare hex
// value without prefix is accepted.
func VerifyChecksum(path, expected string) (bool, error) {
	actual, err := Checksum(path)
	if err != nil {
		return false, err
	}
	if !strings.HasPrefix(expected, ChecksumPrefix) {
		expected = ChecksumPrefix + expected
	}
	return strings.EqualFold(actual, expected), nil
}
