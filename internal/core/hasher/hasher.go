// Package hasher computes SRI-format integrity hashes for archive bytes and
// registry files.
package hasher

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultAlgorithm is used when the registry does not configure one.
const DefaultAlgorithm = "sha256"

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha224":
		return sha256.New224(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("unsupported SRI algorithm: %q", algorithm)
}

// Integrity computes the SRI hash of content, formatted as
// "<algorithm>-<base64 digest>".
func Integrity(content []byte, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(content); err != nil {
		return "", fmt.Errorf("failed to write content to hasher: %w", err)
	}
	return fmt.Sprintf("%s-%s", algorithm, base64.StdEncoding.EncodeToString(h.Sum(nil))), nil
}

// IntegrityFile computes the SRI hash of the file at path.
func IntegrityFile(path, algorithm string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Integrity(data, algorithm)
}

// HashTree walks dir recursively and returns a mapping from each regular
// file's slash-separated path relative to dir to its SRI hash. Files whose
// base name appears in skipNames are left out. A missing dir yields a nil
// map and no error.
func HashTree(dir, algorithm string, skipNames ...string) (map[string]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	skip := make(map[string]bool, len(skipNames))
	for _, name := range skipNames {
		skip[name] = true
	}

	hashes := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || skip[d.Name()] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sri, err := IntegrityFile(path, algorithm)
		if err != nil {
			return err
		}
		hashes[filepath.ToSlash(rel)] = sri
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hash files under %s: %w", dir, err)
	}
	return hashes, nil
}

// HashDir is like HashTree but only considers the regular files directly
// inside dir, ignoring subdirectories.
func HashDir(dir, algorithm string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	hashes := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sri, err := IntegrityFile(filepath.Join(dir, entry.Name()), algorithm)
		if err != nil {
			return nil, err
		}
		hashes[entry.Name()] = sri
	}
	return hashes, nil
}
