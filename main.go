// Command threadscrape collects account timelines and reconstructs
// self-threads from them.
package main

import (
	"os"

	"github.com/ibeckermayer/threadscrape/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
