package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
