// vaultlink - command-line client for a share-protected file storage service.
package main

import (
	"os"

	"github.com/vaultlink/vaultlink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
