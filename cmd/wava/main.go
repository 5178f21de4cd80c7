// Package main starts the WAVA Builder CLI.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wavalabs/builder/internal/cli"
)

func main() {
	log.SetPrefix("[WAVA] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.NewRoot().ExecuteContext(ctx); err != nil {
		log.Fatalf("wava: %v", err)
	}
}
