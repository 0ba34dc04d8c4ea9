// Command eventtail prints the suggestions and consolidated turns the
// pipeline publishes to Kafka, one JSON record per line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"dispatch-copilot-service/internal/config"
	"dispatch-copilot-service/internal/events"
	"dispatch-copilot-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma separated)")
	topics := flag.String("topics", cfg.Kafka.TopicSuggestions+","+cfg.Kafka.TopicTurns, "Topics to tail")
	group := flag.String("group", "", "Consumer group (empty reads partition 0)")
	since := flag.Duration("since", time.Hour, "Start this far back when not in a group")
	flag.Parse()

	// Records go to stdout; logs go to stderr.
	logging.InitWriter(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"}, os.Stderr)
	logger := logging.WithComponent("eventtail")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)
	err := events.Tail(ctx, events.ConsumerConfig{
		Brokers: split(*brokers),
		Topics:  split(*topics),
		GroupID: *group,
		Since:   *since,
	}, func(r events.Record) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(r); err != nil {
			logger.Warn().Err(err).Msg("Failed to write record")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Tail failed")
	}
}

func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
