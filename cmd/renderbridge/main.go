// Command renderbridge serves the render command bridge and inspects its
// payloads.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/renderbridge/cmd/renderbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
