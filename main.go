package main

import (
	"os"

	"github.com/volteq/flexplan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
