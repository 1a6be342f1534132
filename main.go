// The main package for the registry-archiver executable.
package main

import (
	"github.com/seumter-tools/registry-archiver/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
