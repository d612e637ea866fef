package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/nexuscore/nexuscore/internal/interfaces/cli"
	"github.com/nexuscore/nexuscore/internal/interfaces/di"
)

func main() {
	container, err := di.NewContainer(configPathFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer container.Close()

	cli.Execute(container)
}

// configPathFromArgs scans for --config ahead of cobra parsing because the
// container is constructed before the command runs.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}
