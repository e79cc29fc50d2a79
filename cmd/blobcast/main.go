package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aratasato/blobcast"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer cancel()
	var cli blobcast.CLI
	os.Exit(cli.Run(ctx))
}
