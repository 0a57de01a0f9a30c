package cmd

import (
	"bufio"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/courier-forge/courier/internal/cmd/base"
	migrateCmd "github.com/courier-forge/courier/internal/cmd/commands/migrate"
	serverCmd "github.com/courier-forge/courier/internal/cmd/commands/server"
	versionCmd "github.com/courier-forge/courier/internal/cmd/commands/version"
	"github.com/courier-forge/courier/internal/version"
)

// Commands is the mapping of all available CLI commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	baseCommand := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return &serverCmd.Command{Command: baseCommand}, nil
		},
		"migrate": func() (cli.Command, error) {
			return &migrateCmd.Command{Command: baseCommand}, nil
		},
		"version": func() (cli.Command, error) {
			return &versionCmd.Command{Command: baseCommand}, nil
		},
	}
}

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	cliName := args[0]

	log := hclog.New(&hclog.LoggerOptions{
		Name: cliName,
	})

	if len(args) == 2 &&
		(args[1] == "-version" ||
			args[1] == "-v") {
		args = []string{cliName, "version"}
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	initCommands(log, ui)

	c := &cli.CLI{
		Name:     cliName,
		Args:     args[1:],
		Version:  version.Version,
		Commands: Commands,
	}

	exitCode, err := c.Run()
	if err != nil {
		panic(err)
	}

	return exitCode
}
