// Package registry resolves modules and versions inside a private
// Bazel-style module registry.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
)

const (
	// ConfigFileName marks a directory as a registry root.
	ConfigFileName = "bazel_registry.json"
	// SettingsFileName is the optional tool settings file at the root.
	SettingsFileName = "regup.toml"

	defaultModuleBasePath      = "modules"
	defaultDownloadTimeoutSecs = 300
)

var (
	ErrRegistryNotFound = errors.New("registry not found")
	ErrModuleNotFound   = errors.New("module not found")
	ErrVersionNotFound  = errors.New("version not found")
)

// Config mirrors bazel_registry.json.
type Config struct {
	ModuleBasePath string   `json:"module_base_path,omitempty"`
	Mirrors        []string `json:"mirrors,omitempty"`
	Homepage       string   `json:"homepage,omitempty"`
}

// Settings holds the optional regup.toml knobs.
type Settings struct {
	HashAlgorithm       string `toml:"hash_algorithm"`
	DownloadTimeoutSecs int    `toml:"download_timeout_secs"`
}

// DownloadTimeout returns the configured timeout as a duration.
func (s Settings) DownloadTimeout() time.Duration {
	return time.Duration(s.DownloadTimeoutSecs) * time.Second
}

// Registry is an opened registry root.
type Registry struct {
	Root     string
	config   Config
	settings Settings
}

// Open resolves root and loads its configuration. A directory without a
// bazel_registry.json is not a registry.
func Open(root string) (*Registry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve registry root %s: %w", root, err)
	}

	configPath := filepath.Join(absRoot, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: missing %s in %s", ErrRegistryNotFound, ConfigFileName, absRoot)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	reg := &Registry{
		Root: absRoot,
		settings: Settings{
			HashAlgorithm:       "sha256",
			DownloadTimeoutSecs: defaultDownloadTimeoutSecs,
		},
	}
	if err := json.Unmarshal(data, &reg.config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	settingsPath := filepath.Join(absRoot, SettingsFileName)
	if _, err := os.Stat(settingsPath); err == nil {
		if _, err := toml.DecodeFile(settingsPath, &reg.settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", settingsPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", settingsPath, err)
	}

	return reg, nil
}

// Settings returns the tool settings, with defaults applied.
func (r *Registry) Settings() Settings {
	return r.settings
}

// ModulesDir returns the directory holding all module trees.
func (r *Registry) ModulesDir() string {
	base := r.config.ModuleBasePath
	if base == "" {
		base = defaultModuleBasePath
	}
	return filepath.Join(r.Root, base)
}

// ModuleDir returns the directory of one module (which may not exist).
func (r *Registry) ModuleDir(module string) string {
	return filepath.Join(r.ModulesDir(), module)
}

// VersionDir returns the directory of one module version, or
// ErrModuleNotFound/ErrVersionNotFound when either is absent.
func (r *Registry) VersionDir(module, version string) (string, error) {
	moduleDir := r.ModuleDir(module)
	if _, err := os.Stat(moduleDir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrModuleNotFound, moduleDir)
	} else if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", moduleDir, err)
	}

	versionDir := filepath.Join(moduleDir, version)
	if _, err := os.Stat(versionDir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s@%s", ErrVersionNotFound, module, version)
	} else if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", versionDir, err)
	}
	return versionDir, nil
}

// Modules lists all module names in the registry, sorted.
func (r *Registry) Modules() ([]string, error) {
	names, err := subdirNames(r.ModulesDir())
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to list modules in %s: %w", r.ModulesDir(), err)
	}
	sort.Strings(names)
	return names, nil
}

// Versions lists a module's version directories in ascending order:
// semantic order when every name parses as a semantic version,
// lexicographic otherwise. Returns ErrModuleNotFound for unknown modules.
func (r *Registry) Versions(module string) ([]string, error) {
	moduleDir := r.ModuleDir(module)
	names, err := subdirNames(moduleDir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleDir)
	} else if err != nil {
		return nil, fmt.Errorf("failed to list versions in %s: %w", moduleDir, err)
	}
	sortVersions(names)
	return names, nil
}

// LatestVersion picks the newest version of a module, or
// ErrVersionNotFound when the module has no version directories.
func (r *Registry) LatestVersion(module string) (string, error) {
	versions, err := r.Versions(module)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: no versions for module %s", ErrVersionNotFound, module)
	}
	return versions[len(versions)-1], nil
}

func subdirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func sortVersions(names []string) {
	parsed := make(map[string]*semver.Version, len(names))
	for _, name := range names {
		v, err := semver.NewVersion(name)
		if err != nil {
			// Not all names are semantic versions, fall back to
			// lexicographic order like the registry's own tooling.
			sort.Strings(names)
			return
		}
		parsed[name] = v
	}
	sort.Slice(names, func(i, j int) bool {
		return parsed[names[i]].LessThan(parsed[names[j]])
	})
}
