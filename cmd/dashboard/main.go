// dashboard keeps the admin dashboard's realtime feed connected and serves
// or prints what it has folded so far.
package main

import (
	"os"

	"github.com/DoyleJ11/course-realtime-dashboard/cmd/dashboard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
