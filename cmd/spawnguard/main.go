package main

import (
	"os"

	"github.com/tkingovr/spawnguard/cmd/spawnguard/cli"
)

func main() {
	os.Exit(cli.Execute())
}
