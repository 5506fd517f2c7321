package main

import (
	"fmt"
	"os"

	"option-analyzer/internal/cli"
	"option-analyzer/internal/logging"
)

func main() {
	app := cli.NewApp(logging.NewLogger())
	rootCmd := cli.NewRootCmd(app)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
