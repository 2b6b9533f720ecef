package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Контекст с сигналами завершения
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	root := rootCMD()
	root.AddCommand(
		chatCMD(),
		ingestCMD(),
		addTextCMD(),
		askCMD(),
		searchCMD(),
		statsCMD(),
		clearCMD(),
		removeCMD(),
		serveCMD(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
