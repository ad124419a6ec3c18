package update

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/privreg/regup/internal/core/descriptor"
	"github.com/privreg/regup/internal/core/registry"
)

// Reference SRI values for the fixture contents used below.
const (
	archiveSRI      = "sha256-I/9Kf0ISSZ9UYSI3F1Dmd6fpmNpjKiKv6KIz3Vk7H3Y=" // "archive-bytes-v1"
	buildFileSRI    = "sha256-cFr0d2NLm8smOKEIGifvtZ9pc5Ea3SG9jzAztQRZvq0=" // "# generated build file\n"
	nestedSRI       = "sha256-QEFgeU0N540B+m0nAyMPXxl2CsPhM2WQqLWc4mSUDvM=" // "overlay-two"
	patchSRI        = "sha256-JggevCtwqbIe+Bk2zjq3lhVPcRrazR51PnQt036j0rk=" // "--- a/src.c\n+++ b/src.c\n"
	archiveSHA512   = "sha512-ngdq7i9XX+/lrNHI7CrBiDRwPoemuVLqN+8shNCLcV0MZDTtrx/zGaW6hBYxGQCG+MQVOHpdGsOE9+TOdCknAg==" // "Hello, registry!"
	archiveContents = "archive-bytes-v1"
)

// setupRegistry creates a registry root with one module version and the
// given source.json content. Returns the root and the version directory.
func setupRegistry(t *testing.T, module, version, sourceJSON string) (string, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, registry.ConfigFileName),
		[]byte(`{"module_base_path": "modules"}`), 0644))

	versionDir := filepath.Join(root, "modules", module, version)
	require.NoError(t, os.MkdirAll(versionDir, 0755))
	if sourceJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(versionDir, descriptor.FileName), []byte(sourceJSON), 0644))
	}
	return root, versionDir
}

func writeVersionFiles(t *testing.T, versionDir string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		absPath := filepath.Join(versionDir, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(absPath), 0755))
		require.NoError(t, os.WriteFile(absPath, []byte(content), 0644))
	}
}

// runUpdateCommand runs "update" with the given arguments, returning the
// error from app.Run. The ExitErrHandler is a no-op so cli.Exit errors come
// back to the test instead of terminating the process.
func runUpdateCommand(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.App{
		Name: "regup-test",
		Commands: []*cli.Command{
			NewUpdateCommand(),
		},
		ExitErrHandler: func(context *cli.Context, err error) {},
	}
	cliArgs := append([]string{"regup-test", "update"}, args...)
	return app.Run(cliArgs)
}

// startArchiveServer serves the fixture archive bytes on every path.
func startArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(archiveContents))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestUpdateCommand_RefreshesArchiveOverlayAndPatches(t *testing.T) {
	server := startArchiveServer(t)
	initialSource := `{
    "url": "` + server.URL + `/demo-1.0.0.tar.gz",
    "integrity": "old-invalid-hash",
    "strip_prefix": "demo-1.0.0",
    "overlay": {
        "deleted.bzl": "sha256-stale"
    }
}
`
	root, versionDir := setupRegistry(t, "demo", "1.0.0", initialSource)
	writeVersionFiles(t, versionDir, map[string]string{
		"overlay/BUILD.bazel":       "# generated build file\n",
		"overlay/src/extra.bzl":     "overlay-two",
		"overlay/MODULE.bazel.lock": "never recorded",
		"patches/fix.patch":         "--- a/src.c\n+++ b/src.c\n",
	})

	err := runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root)
	require.NoError(t, err)

	updated, err := descriptor.Load(versionDir)
	require.NoError(t, err)

	assert.Equal(t, archiveSRI, updated.Integrity)
	assert.Equal(t, "demo-1.0.0", updated.StripPrefix, "strip_prefix must pass through untouched")

	// The overlay mapping is rebuilt from disk: exactly one key per file,
	// stale keys gone, lock files excluded.
	assert.Equal(t, map[string]string{
		"BUILD.bazel":   buildFileSRI,
		"src/extra.bzl": nestedSRI,
	}, updated.Overlay)

	assert.Equal(t, map[string]string{
		"fix.patch": patchSRI,
	}, updated.Patches)
}

func TestUpdateCommand_SecondRunIsByteIdempotent(t *testing.T) {
	server := startArchiveServer(t)
	initialSource := `{"url": "` + server.URL + `/demo.tar.gz", "integrity": "old"}`
	root, versionDir := setupRegistry(t, "demo", "1.0.0", initialSource)
	writeVersionFiles(t, versionDir, map[string]string{
		"overlay/BUILD.bazel": "# generated build file\n",
	})

	require.NoError(t, runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root))
	firstRun, err := os.ReadFile(filepath.Join(versionDir, descriptor.FileName))
	require.NoError(t, err)

	require.NoError(t, runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root))
	secondRun, err := os.ReadFile(filepath.Join(versionDir, descriptor.FileName))
	require.NoError(t, err)

	assert.Equal(t, string(firstRun), string(secondRun), "rerunning without changes must not alter the descriptor")
}

func TestUpdateCommand_MissingPatchesDirClearsMapping(t *testing.T) {
	server := startArchiveServer(t)
	initialSource := `{
    "url": "` + server.URL + `/demo.tar.gz",
    "integrity": "old",
    "patches": {
        "gone.patch": "sha256-stale"
    }
}
`
	root, versionDir := setupRegistry(t, "demo", "1.0.0", initialSource)

	err := runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root)
	require.NoError(t, err, "a missing patches/ directory is not an error")

	raw, err := os.ReadFile(filepath.Join(versionDir, descriptor.FileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"patches"`, "patches section must be dropped when the directory is absent")
}

func TestUpdateCommand_DownloadFailureLeavesDescriptorUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	initialSource := `{"url": "` + server.URL + `/demo.tar.gz", "integrity": "old-invalid-hash"}`
	root, versionDir := setupRegistry(t, "demo", "1.0.0", initialSource)
	writeVersionFiles(t, versionDir, map[string]string{
		"overlay/BUILD.bazel": "# generated build file\n",
	})

	err := runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download failed")

	raw, readErr := os.ReadFile(filepath.Join(versionDir, descriptor.FileName))
	require.NoError(t, readErr)
	assert.Equal(t, initialSource, string(raw), "failed runs must not modify the on-disk descriptor")
}

func TestUpdateCommand_DefaultsToLatestVersion(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "demo.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, []byte(archiveContents), 0644))
	sourceJSON := `{"url": "file://` + filepath.ToSlash(archivePath) + `", "integrity": "old"}`

	root, oldVersionDir := setupRegistry(t, "demo", "1.9.0", sourceJSON)
	latestVersionDir := filepath.Join(root, "modules", "demo", "1.10.0")
	require.NoError(t, os.MkdirAll(latestVersionDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(latestVersionDir, descriptor.FileName), []byte(sourceJSON), 0644))

	err := runUpdateCommand(t, "demo", "--registry", root)
	require.NoError(t, err)

	latest, err := descriptor.Load(latestVersionDir)
	require.NoError(t, err)
	assert.Equal(t, archiveSRI, latest.Integrity, "1.10.0 must be selected over 1.9.0")

	older, err := os.ReadFile(filepath.Join(oldVersionDir, descriptor.FileName))
	require.NoError(t, err)
	assert.Equal(t, sourceJSON, string(older), "the non-latest version must not be touched")
}

func TestUpdateCommand_RegistryNotFound(t *testing.T) {
	err := runUpdateCommand(t, "demo", "--registry", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry not found")
}

func TestUpdateCommand_ModuleNotFoundListsAvailable(t *testing.T) {
	root, _ := setupRegistry(t, "zlib", "1.3.1", `{"url": "", "integrity": ""}`)

	err := runUpdateCommand(t, "ghost", "--registry", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module not found")
	assert.Contains(t, err.Error(), "Available modules: zlib")
}

func TestUpdateCommand_VersionNotFoundListsAvailable(t *testing.T) {
	root, _ := setupRegistry(t, "demo", "1.0.0", `{"url": "", "integrity": ""}`)

	err := runUpdateCommand(t, "demo", "--version", "9.9.9", "--registry", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version not found")
	assert.Contains(t, err.Error(), "Available versions: 1.0.0")
}

func TestUpdateCommand_DescriptorNotFound(t *testing.T) {
	root, _ := setupRegistry(t, "demo", "1.0.0", "")

	err := runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "descriptor not found")
}

func TestUpdateCommand_ConfiguredAlgorithm(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "demo.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, []byte("Hello, registry!"), 0644))
	sourceJSON := `{"url": "file://` + filepath.ToSlash(archivePath) + `", "integrity": "old"}`

	root, versionDir := setupRegistry(t, "demo", "1.0.0", sourceJSON)
	require.NoError(t, os.WriteFile(filepath.Join(root, registry.SettingsFileName),
		[]byte("hash_algorithm = \"sha512\"\n"), 0644))

	err := runUpdateCommand(t, "demo", "--version", "1.0.0", "--registry", root)
	require.NoError(t, err)

	updated, err := descriptor.Load(versionDir)
	require.NoError(t, err)
	assert.Equal(t, archiveSHA512, updated.Integrity)
}

func TestUpdateCommand_MissingModuleArgument(t *testing.T) {
	err := runUpdateCommand(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<module> argument is required")
}
