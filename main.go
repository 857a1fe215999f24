// The main package for the botrelay executable.
package main

import (
	"os"

	"github.com/JakeFAU/botrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
