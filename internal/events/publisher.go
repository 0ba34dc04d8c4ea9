// Package events publishes distributed suggestions and consolidated turns to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/metrics"
)

// Publisher publishes pipeline events to separate Kafka topics.
// Messages are keyed by session id so one call stays on one partition.
type Publisher struct {
	writerSuggestions *kafka.Writer
	writerTurns       *kafka.Writer
	principal         string
	sessionID         string
	topicSuggestions  string
	topicTurns        string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicSuggestions string
	TopicTurns       string
	Principal        string
	SessionID        string
	Enabled          bool
	Metrics          *metrics.Metrics
}

// New creates a Kafka event publisher. When disabled it only logs.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: metrics.DefaultMetrics}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	p := &Publisher{
		principal:        cfg.Principal,
		sessionID:        cfg.SessionID,
		topicSuggestions: cfg.TopicSuggestions,
		topicTurns:       cfg.TopicTurns,
		metrics:          m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerSuggestions = newWriter(cfg.Brokers, cfg.TopicSuggestions, transport)
	p.writerTurns = newWriter(cfg.Brokers, cfg.TopicTurns, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicSuggestions", cfg.TopicSuggestions).
		Str("topicTurns", cfg.TopicTurns).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Emit publishes a distributed suggestions event.
func (p *Publisher) Emit(ctx context.Context, origin string, ev models.SuggestionsEvent) error {
	return p.publish(ctx, p.writerSuggestions, p.topicSuggestions, ev.Event, origin, ev)
}

// RecordTurns publishes the consolidated turns of one batch.
func (p *Publisher) RecordTurns(ctx context.Context, ev models.TurnsEvent) error {
	return p.publish(ctx, p.writerTurns, p.topicTurns, ev.EventType, "", ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, origin string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", p.sessionID).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	headers := []kafka.Header{
		{Key: "eventType", Value: []byte(eventType)},
		{Key: "principal", Value: []byte(p.principal)},
	}
	if origin != "" {
		headers = append(headers, kafka.Header{Key: "origin", Value: []byte(origin)})
	}

	msg := kafka.Message{
		Key:     []byte(p.sessionID),
		Value:   payload,
		Headers: headers,
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", p.sessionID).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerSuggestions != nil {
		if e := p.writerSuggestions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing suggestions writer")
			err = e
		}
	}
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	return err
}
