// Package base holds the pieces shared by all CLI commands.
package base

import (
	"bytes"
	"flag"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every CLI command.
type Command struct {
	// Log is the logger for the command.
	Log hclog.Logger

	// UI is the terminal UI for the command.
	UI cli.Ui
}

// NewCommand returns a base command.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
	}
}

// FlagSet wraps flag.FlagSet so commands can render their flag usage in
// their help output.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet returns a FlagSet wrapping f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help returns the usage text for all defined flags.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	f.SetOutput(&buf)
	f.PrintDefaults()
	if buf.Len() == 0 {
		return ""
	}
	return "\n\nOptions:\n\n" + buf.String()
}
