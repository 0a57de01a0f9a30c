package version

import (
	"github.com/courier-forge/courier/internal/cmd/base"
	"github.com/courier-forge/courier/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return "Usage: courier version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}
