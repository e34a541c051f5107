package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/framewell/callsheet/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		// Already rendered by the command's formatter.
		os.Exit(exitErr.Code)
	}
	// Flag and argument parse errors never reach a formatter.
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(cli.ExitUsage)
}
