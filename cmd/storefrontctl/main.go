package main

import (
	"fmt"
	"os"
	"path"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = path.Base(os.Args[0])
	app.Usage = "Operate the storefront service"
	app.Version = version
	app.Flags = globalFlags()
	app.Before = before

	app.Commands = []*cli.Command{
		migrateCommand(),
		resolveCommand(),
		businessCommand(),
		verifyCommand(),
		grantRoleCommand(),
	}
	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(os.Stderr, "command %s not found\n", command)
		os.Exit(1)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
