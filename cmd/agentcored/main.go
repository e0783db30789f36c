// Command agentcored is the agentcore CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/kilnhq/agentcore/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
