package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
