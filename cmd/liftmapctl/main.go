// Command liftmapctl is the operator tool for liftmap: it generates and
// replays rides offline, drives a running service with simulated sessions and
// reads stored sessions and reports from the database.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
