package main

import (
	"fmt"
	"os"

	"github.com/CERT-Polska/hsn2-console/internal/console"
)

func main() {
	if err := console.NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
