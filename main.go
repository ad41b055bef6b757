// The main package for the ogproxy executable.
package main

import (
	"github.com/JakeFAU/ogp-proxy/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
