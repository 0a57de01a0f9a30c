package main

import (
	"os"

	"github.com/courier-forge/courier/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
