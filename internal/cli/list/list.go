// Package list implements the "list" command for browsing registry
// contents.
package list

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/privreg/regup/internal/core/registry"
)

// NewListCommand creates the cli.Command for "list".
func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "Lists registry modules, or the versions of one module",
		ArgsUsage: "[module]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "registry",
				Usage: "Path to the registry root",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			reg, err := registry.Open(c.String("registry"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}

			headerColor := color.New(color.FgCyan, color.Bold).SprintFunc()
			nameColor := color.New(color.FgWhite).SprintFunc()
			latestColor := color.New(color.FgYellow).SprintFunc()

			if c.NArg() == 0 {
				modules, err := reg.Modules()
				if err != nil {
					return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
				}
				fmt.Printf("%s %s\n", headerColor("modules:"), reg.Root)
				if len(modules) == 0 {
					fmt.Println("No modules found in registry.")
					return nil
				}
				for _, name := range modules {
					fmt.Printf("  %s\n", nameColor(name))
				}
				return nil
			}

			moduleName := c.Args().First()
			versions, err := reg.Versions(moduleName)
			if err != nil {
				if errors.Is(err, registry.ErrModuleNotFound) {
					return cli.Exit(fmt.Sprintf("Error: module '%s' not found in registry %s", moduleName, reg.Root), 1)
				}
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}
			if len(versions) == 0 {
				return cli.Exit(fmt.Sprintf("Error: no versions found for module '%s'", moduleName), 1)
			}

			fmt.Printf("%s\n", headerColor(moduleName+":"))
			for i, version := range versions {
				if i == len(versions)-1 {
					fmt.Printf("  %s %s\n", nameColor(version), latestColor("(latest)"))
				} else {
					fmt.Printf("  %s\n", nameColor(version))
				}
			}
			return nil
		},
	}
}
