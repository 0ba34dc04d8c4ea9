// Command console is the dispatcher terminal: it subscribes to the hub and
// renders suggestions as they are distributed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dispatch-copilot-service/internal/console"
	"dispatch-copilot-service/internal/hubclient"
	"dispatch-copilot-service/internal/observability/logging"
)

func main() {
	hubURL := flag.String("hub", "ws://localhost:8765/ws", "Hub websocket URL")
	logPath := flag.String("log", "console.log", "Log file")
	flag.Parse()

	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logging.InitWriter(logging.Config{Level: "info", Format: "json", TimeFormat: time.RFC3339}, logFile)
	logger := logging.WithComponent("console")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := hubclient.Dial(ctx, *hubURL, hubclient.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to hub: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	inbound := make(chan tea.Msg, 64)
	go func() {
		defer close(inbound)
		if err := client.Run(ctx, console.Forward(inbound)); err != nil {
			logger.Warn().Err(err).Msg("Hub connection lost")
		}
	}()

	p := tea.NewProgram(console.New(client, inbound), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error().Err(err).Msg("Console exited with error")
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}
