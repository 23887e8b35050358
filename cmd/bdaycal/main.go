package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd, err := newRootCmd().ExecuteContextC(ctx)
	stop()

	if err != nil {
		log := failureLogger(cmd)
		log.Error().Err(err).Msg("bdaycal failed")
		os.Exit(1)
	}
}
