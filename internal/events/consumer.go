package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Record is one pipeline event read back from the bus.
type Record struct {
	Topic     string          `json:"topic"`
	SessionID string          `json:"sessionId"`
	EventType string          `json:"eventType"`
	Principal string          `json:"principal,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Time      time.Time       `json:"time"`
	Value     json.RawMessage `json:"value"`
}

// ConsumerConfig configures Tail.
type ConsumerConfig struct {
	Brokers []string
	Topics  []string
	// GroupID joins a consumer group. Without one each topic is read from
	// partition 0 starting Since ago.
	GroupID string
	Since   time.Duration
}

// Tail reads every topic until ctx is done, calling fn for each record.
// fn is called from one goroutine per topic.
func Tail(ctx context.Context, cfg ConsumerConfig, fn func(Record)) error {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		return errors.New("tail: brokers and topics are required")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range cfg.Topics {
		g.Go(func() error { return tailTopic(gctx, cfg, topic, fn) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func tailTopic(ctx context.Context, cfg ConsumerConfig, topic string, fn func(Record)) error {
	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.GroupID != "" {
		rc.GroupID = cfg.GroupID
	} else {
		rc.Partition = 0
	}

	reader := kafka.NewReader(rc)
	defer reader.Close()

	if cfg.GroupID == "" && cfg.Since > 0 {
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-cfg.Since)); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Could not seek, reading from the committed offset")
		}
	}

	log.Info().Str("topic", topic).Str("groupId", cfg.GroupID).Msg("Consuming from Kafka topic")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		fn(Decode(msg))
	}
}

// Decode converts a published Kafka message into a Record.
func Decode(msg kafka.Message) Record {
	r := Record{
		Topic:     msg.Topic,
		SessionID: string(msg.Key),
		Time:      msg.Time,
		Value:     json.RawMessage(msg.Value),
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case "eventType":
			r.EventType = string(h.Value)
		case "principal":
			r.Principal = string(h.Value)
		case "origin":
			r.Origin = string(h.Value)
		}
	}
	return r
}
