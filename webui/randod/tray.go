//go:build !linux

package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/getlantern/systray"
)

func createSystray(ctx context.Context, quit context.CancelFunc, url string, logger *log.Logger) {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	systray.Run(func() { trayStart(url, logger) }, func() {
		logger.Info("tray exited")
		quit()
	})
}

func trayStart(url string, logger *log.Logger) {
	systray.SetTitle("randod")
	systray.SetTooltip("randod - ROM randomizer")
	mOpenWeb := systray.AddMenuItem("Web UI", "Opens the web UI in the default browser")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit")

	// Menu item click handler:
	go func() {
		for {
			select {
			case <-mOpenWeb.ClickedCh:
				openWebUI(url, logger)
			case <-mQuit.ClickedCh:
				logger.Info("requesting quit")
				systray.Quit()
				return
			}
		}
	}()
}
