// Command storectl administers a snippet-store database from the shell:
// schema migrations, users, the moderation queue, statistics and retention.
//
// It reads the same environment as the server (DB_DRIVER, DB_DSN, DB_PATH),
// so pointing it at a deployment needs no extra configuration.
package main

import (
	"os"
)

// version is set via ldflags during build
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
