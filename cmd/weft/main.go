// Command weft keeps the generated build inputs of a TypeScript workspace in
// sync with its sources and drives per-project builds in dependency order.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		os.Exit(1)
	}
}
