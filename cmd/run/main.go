// Command run forwards its arguments to the pipeline script of a recipe:
//
//	run <train|train2|test|data|sweep> [args...]
//
// The script's exit status becomes run's exit status. Any other command
// exits 1 without starting a process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if _, err := logging.Setup(os.Getenv("NABU_LOG_LEVEL"), os.Getenv("NABU_LOG_FORMAT"), os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// The terminal delivers an interrupt to the script too; wait for it to
	// exit and report its status instead of dying first.
	signal.Notify(make(chan os.Signal, 1), os.Interrupt)

	err := dispatch.New().Run(context.Background(), args)
	if err != nil {
		var exitErr *dispatch.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return dispatch.ExitCode(err)
}
