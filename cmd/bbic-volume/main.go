package main

import (
	"fmt"
	"os"

	"github.com/bluebrain/bbic/cmd/bbic-volume/cmd"
)

func main() {
	if err := cmd.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
