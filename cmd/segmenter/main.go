package main

import (
	"os"

	"github.com/solatis/segmenter/cmd/segmenter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
