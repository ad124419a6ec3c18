// Package update implements the "update" command, which recomputes the
// integrity hashes recorded in a module version's source.json.
package update

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/privreg/regup/internal/core/descriptor"
	"github.com/privreg/regup/internal/core/downloader"
	"github.com/privreg/regup/internal/core/hasher"
	"github.com/privreg/regup/internal/core/registry"
)

// Lockfiles generated by the build tool may end up under overlay/ but are
// never part of the recorded overlay set.
const overlayLockName = "MODULE.bazel.lock"

// NewUpdateCommand creates the cli.Command for "update".
func NewUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Recomputes the SRI hashes in a module version's source.json",
		ArgsUsage: "<module>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "version",
				Usage: "Module version (uses the latest if not specified)",
			},
			&cli.StringFlag{
				Name:  "registry",
				Usage: "Path to the registry root",
				Value: ".",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("Error: <module> argument is required.", 1)
			}
			moduleName := c.Args().First()
			verbose := c.Bool("verbose")

			reg, err := registry.Open(c.String("registry"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}
			if verbose {
				fmt.Printf("Registry root: %s\n", reg.Root)
				fmt.Printf("Hash algorithm: %s\n", reg.Settings().HashAlgorithm)
			}

			version := c.String("version")
			if version == "" {
				version, err = reg.LatestVersion(moduleName)
				if err != nil {
					return cli.Exit(describeLookupFailure(reg, moduleName, err), 1)
				}
				fmt.Printf("Using latest version: %s\n", version)
			}

			versionDir, err := reg.VersionDir(moduleName, version)
			if err != nil {
				return cli.Exit(describeLookupFailure(reg, moduleName, err), 1)
			}

			fmt.Printf("Updating integrity for %s@%s in %s\n", moduleName, version, reg.Root)
			if err := updateIntegrity(reg, versionDir); err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}
			fmt.Println("Done!")
			return nil
		},
	}
}

// updateIntegrity recomputes every hash recorded in the version's
// source.json and rewrites it. All state is held in memory until the final
// atomic write, so any failure leaves the on-disk descriptor unchanged.
func updateIntegrity(reg *registry.Registry, versionDir string) error {
	desc, err := descriptor.Load(versionDir)
	if err != nil {
		return err
	}

	settings := reg.Settings()

	if desc.URL != "" {
		fmt.Printf("Downloading and calculating integrity for %s\n", desc.URL)
		archive, err := downloader.Download(desc.URL, settings.DownloadTimeout())
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		desc.Integrity, err = hasher.Integrity(archive, settings.HashAlgorithm)
		if err != nil {
			return err
		}
		fmt.Printf("Updated main archive integrity: %s\n", desc.Integrity)
	}

	overlay, err := hasher.HashTree(filepath.Join(versionDir, "overlay"), settings.HashAlgorithm, overlayLockName)
	if err != nil {
		return err
	}
	reportChanges("overlay", desc.Overlay, overlay)
	desc.Overlay = dropEmpty(overlay)

	patches, err := hasher.HashDir(filepath.Join(versionDir, "patches"), settings.HashAlgorithm)
	if err != nil {
		return err
	}
	reportChanges("patch", desc.Patches, patches)
	desc.Patches = dropEmpty(patches)

	if err := desc.Save(versionDir); err != nil {
		return err
	}
	fmt.Printf("Updated %s\n", descriptor.Path(versionDir))
	return nil
}

// reportChanges prints one line per added or changed entry, in stable order.
func reportChanges(kind string, previous, current map[string]string) {
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		old, existed := previous[name]
		switch {
		case !existed:
			fmt.Printf("Added new %s %s: %s\n", kind, name, current[name])
		case old != current[name]:
			fmt.Printf("Updated %s %s: %s\n", kind, name, current[name])
		}
	}
}

func dropEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

// describeLookupFailure augments module/version lookup errors with what is
// actually available, so a typo is easy to spot.
func describeLookupFailure(reg *registry.Registry, moduleName string, err error) string {
	msg := fmt.Sprintf("Error: %v", err)
	if errors.Is(err, registry.ErrModuleNotFound) {
		if modules, listErr := reg.Modules(); listErr == nil && len(modules) > 0 {
			msg += fmt.Sprintf("\nAvailable modules: %s", strings.Join(modules, ", "))
		}
	} else if errors.Is(err, registry.ErrVersionNotFound) {
		if versions, listErr := reg.Versions(moduleName); listErr == nil && len(versions) > 0 {
			msg += fmt.Sprintf("\nAvailable versions: %s", strings.Join(versions, ", "))
		}
	}
	return msg
}
