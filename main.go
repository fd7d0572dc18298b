// The main package for the youread executable.
package main

import (
	"github.com/JakeFAU/youread/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
