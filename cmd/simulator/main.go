// Command simulator plays a scripted emergency call into the hub as
// interim-transcription fragments.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch-copilot-service/internal/hubclient"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/simulator"
)

func main() {
	hubURL := flag.String("hub", "ws://localhost:8765/ws", "Hub websocket URL")
	interval := flag.Duration("interval", 3*time.Second, "Pause between exchanges")
	fragmentDelay := flag.Duration("fragment-delay", 150*time.Millisecond, "Pause between fragments of one utterance")
	words := flag.Int("words", 3, "Words per fragment")
	jitter := flag.Int("jitter", 0, "Shuffle fragments within windows of this size")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Jitter seed")
	loop := flag.Bool("loop", false, "Replay the script until interrupted")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.RFC3339})
	logger := logging.WithComponent("simulator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := hubclient.Dial(ctx, *hubURL, hubclient.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to hub")
	}
	defer client.Close()

	// Drain hub frames so the connection stays healthy.
	go func() { _ = client.Run(ctx, nil) }()

	sim := simulator.New(simulator.Config{
		WordsPerFragment: *words,
		JitterWindow:     *jitter,
		Seed:             *seed,
		FragmentDelay:    *fragmentDelay,
		Interval:         *interval,
	})

	for {
		if err := sim.Run(ctx, simulator.DefaultScript, client); err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("Simulation failed")
			}
			return
		}
		logger.Info().Msg("Script finished")
		if !*loop {
			return
		}
	}
}
