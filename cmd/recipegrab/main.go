// The main package for the recipegrab executable.
package main

import (
	"os"

	"github.com/forkbench/recipegrab/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
