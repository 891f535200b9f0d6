package main

import (
	"os"

	"github.com/dshills/flsverify/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
