// Command execd assembles execution contexts and spawns the fixed-order
// child pipeline (C1-C8) described by the execution-context assembly
// pipeline.
package main

import (
	"fmt"
	"os"

	"execd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
