// Command cadence runs the outreach cadence engine.
//
// serve polls (or ticks on a cron schedule) for due enrollments and advances them.
// The other commands enroll leads, run a single batch, print the MySQL schema
// or seed reference data, and print their results as JSON.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
