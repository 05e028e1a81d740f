package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/withObsrvr/auction-ledger/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	code := cli.Execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}
