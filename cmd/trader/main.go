package main

import (
	"os"

	"github.com/kbd172102/trading-dashboard/cmd/trader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
