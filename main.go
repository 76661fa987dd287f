// The main package for the pdfworker executable.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/JakeFAU/pdfworker/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
