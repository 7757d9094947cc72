// Command redis-inmemory-server serves an in-memory Redis-compatible store
// seeded from an RDB snapshot.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
