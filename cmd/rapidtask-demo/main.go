// Command rapidtask-demo runs a batch of progress-reporting tasks on a RapidTask
// runtime and optionally serves its Prometheus metrics.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
