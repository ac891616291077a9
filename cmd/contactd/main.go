package main

import (
	"fmt"
	"os"

	"github.com/dmitriko/contactd/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "contactd:", err)
		os.Exit(1)
	}
}
