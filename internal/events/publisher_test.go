package events

import (
	"context"
	"testing"
)

func TestNewDisabledWithoutBrokers(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "disabled", cfg: &Config{Enabled: false, Brokers: []string{"broker:9092"}}},
		{name: "no brokers", cfg: &Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p.enabled {
				t.Error("publisher enabled without a usable broker config")
			}
			if p.writerJobs != nil || p.writerBias != nil {
				t.Error("writers created in log-only mode")
			}
		})
	}
}

func TestLogOnlyPublishSucceeds(t *testing.T) {
	p := New(&Config{TopicJobs: "jobs", TopicBias: "bias", Principal: "svc-test"})
	ctx := context.Background()

	if err := p.PublishJobEvent(ctx, "job-1", map[string]string{"state": "queued"}); err != nil {
		t.Errorf("PublishJobEvent in log-only mode: %v", err)
	}
	if err := p.PublishBiasRecord(ctx, "alpha", map[string]float64{"wer": 0.1}); err != nil {
		t.Errorf("PublishBiasRecord in log-only mode: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLogOnlyPublishRejectsUnmarshalable(t *testing.T) {
	p := New(nil)
	if err := p.PublishJobEvent(context.Background(), "job-1", make(chan int)); err == nil {
		t.Error("PublishJobEvent accepted an unmarshalable payload")
	}
}
