// Package descriptor reads and writes a module version's source.json file.
package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const FileName = "source.json"

// ErrNotFound is returned when a module version has no source.json.
var ErrNotFound = errors.New("descriptor not found")

// Descriptor mirrors the source.json of one module version. Field order
// matches the registry's conventional key order: url, integrity,
// strip_prefix, patch_strip, overlay, patches.
//
// strip_prefix and patch_strip are passthrough fields controlling archive
// extraction; the updater never changes them.
type Descriptor struct {
	URL         string            `json:"url"`
	Integrity   string            `json:"integrity"`
	StripPrefix string            `json:"strip_prefix,omitempty"`
	PatchStrip  int               `json:"patch_strip,omitempty"`
	Overlay     map[string]string `json:"overlay,omitempty"`
	Patches     map[string]string `json:"patches,omitempty"`
}

// Path returns the location of the source.json inside versionDir.
func Path(versionDir string) string {
	return filepath.Join(versionDir, FileName)
}

// Load reads and parses the source.json inside versionDir.
func Load(versionDir string) (*Descriptor, error) {
	path := Path(versionDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &d, nil
}

// Save writes the descriptor back to versionDir, 4-space indented with a
// trailing newline. The content is staged in a temp file in the same
// directory and renamed over source.json, so a failed write leaves the
// existing descriptor untouched.
func (d *Descriptor) Save(versionDir string) error {
	path := Path(versionDir)
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(versionDir, FileName+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
