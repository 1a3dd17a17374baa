// The main package for the brokenlinks executable.
package main

import (
	"github.com/JakeFAU/brokenlinks/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
