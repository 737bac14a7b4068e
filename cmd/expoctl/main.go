package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"expohub/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "expoctl:", err)
		stop()
		os.Exit(1)
	}
}
