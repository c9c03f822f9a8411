// Command draftctl runs maintenance tasks against a drafts deployment.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
