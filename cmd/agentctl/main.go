package main

import (
	"os"

	"github.com/codexswarm/agentctl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
