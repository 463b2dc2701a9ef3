package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

const (
	version = "0.1.0"
	license = "MIT"
	author  = "Ray-D-Song"
	url     = "https://github.com/ray-d-song/bookimg"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
