// Command workdeskctl inspects and edits the role permission table from the
// command line.
package main

import (
	"os"
)

func main() {
	if err := RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
