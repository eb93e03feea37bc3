// Package events provides event publishing to the observability sink.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-transcription-service/internal/observability/metrics"
)

// Publisher publishes job lifecycle events and bias audit records to
// separate Kafka topics. When Kafka is disabled it degrades to log-only
// mode so emission sites never need a nil check.
type Publisher struct {
	writerJobs *kafka.Writer
	writerBias *kafka.Writer
	principal  string
	topicJobs  string
	topicBias  string
	enabled    bool
	metrics    *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	TopicJobs string
	TopicBias string
	Principal string
	Enabled   bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal: cfg.Principal,
			topicJobs: cfg.TopicJobs,
			topicBias: cfg.TopicBias,
			enabled:   false,
			metrics:   m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerJobs := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicJobs,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerBias := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicBias,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicJobs", cfg.TopicJobs).
		Str("topicBias", cfg.TopicBias).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerJobs: writerJobs,
		writerBias: writerBias,
		principal:  cfg.Principal,
		topicJobs:  cfg.TopicJobs,
		topicBias:  cfg.TopicBias,
		enabled:    true,
		metrics:    m,
	}
}

// PublishJobEvent publishes a job lifecycle event to the jobs topic.
func (p *Publisher) PublishJobEvent(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerJobs, p.topicJobs, "job", key, event)
}

// PublishBiasRecord publishes a bias audit record to the bias topic.
func (p *Publisher) PublishBiasRecord(ctx context.Context, key string, record any) error {
	return p.publish(ctx, p.writerBias, p.topicBias, "bias", key, record)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
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
	if p.writerJobs != nil {
		if e := p.writerJobs.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing jobs writer")
			err = e
		}
	}
	if p.writerBias != nil {
		if e := p.writerBias.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing bias writer")
			err = e
		}
	}
	return err
}
