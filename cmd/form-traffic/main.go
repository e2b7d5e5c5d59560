package main

import (
	"os"

	"github.com/okian/formwizard/internal/traffic"
)

func main() {
	if err := traffic.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
