package main

import (
	"context"

	"github.com/charmbracelet/log"
)

func createSystray(ctx context.Context, _ context.CancelFunc, url string, logger *log.Logger) {
	// just open the browser UI on startup:
	openWebUI(url, logger)
	<-ctx.Done()
}
