// cmd/scraperd/main.go
package main

import (
	"github.com/websentry/scraperd/internal/cli"
)

func main() {
	// Signal handling lives in the run command so that a first interrupt
	// drains in-flight sessions instead of killing the process.
	cli.Execute()
}
