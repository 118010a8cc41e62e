package main

import (
	"os"

	"market_go/cmd/app/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
