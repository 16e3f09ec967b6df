package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nabu-speech/nabu-ctl/cmd/nabu/cmd"
	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(dispatch.ExitCode(err))
	}
}
