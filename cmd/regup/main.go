package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/privreg/regup/internal/cli/list"
	"github.com/privreg/regup/internal/cli/self"
	"github.com/privreg/regup/internal/cli/update"
)

func main() {
	app := &cli.App{
		Name:    "regup",
		Usage:   "Maintains the SRI integrity metadata of a private module registry",
		Version: "v0.1.0",
		Action: func(c *cli.Context) error {
			// Default action if no command is specified
			_ = cli.ShowAppHelp(c)
			return nil
		},
		Commands: []*cli.Command{
			update.NewUpdateCommand(),
			list.NewListCommand(),
			self.NewSelfCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
