package main

import (
	"os"

	"github.com/toshima-abt/hachiq/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
