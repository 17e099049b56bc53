// Command backupd runs the backup script once at startup and then on a fixed
// schedule until it is interrupted.
package main

import (
	"fmt"
	"os"
)

func main() {
	err := newRootCmd().Execute()
	if err != nil && !isReported(err) {
		fmt.Fprintln(os.Stderr, "backupd:", err)
	}
	os.Exit(exitCode(err))
}
