// Package orchestrator coordinates transcription across the configured
// provider adapters: priority ordering, failover, the mandatory central
// crisis scan, and bias audit recording.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-transcription-service/internal/models"
	"ai-transcription-service/internal/observability/logging"
	"ai-transcription-service/internal/observability/metrics"
	"ai-transcription-service/internal/safety"
	"ai-transcription-service/internal/service/stt"
)

// BiasRecorder receives accuracy audit records. Pure side effect: it never
// influences control flow or the returned result.
type BiasRecorder interface {
	Record(ctx context.Context, res *models.Result, demo *models.SpeakerDemographics)
}

// AllProvidersFailedError is the terminal failure of one orchestration call:
// every provider in the order was attempted and failed. It carries the last
// underlying error for diagnosis and the exhausted provider list.
type AllProvidersFailedError struct {
	Attempted []string
	LastErr   error
}

func (e *AllProvidersFailedError) Error() string {
	last := "no providers configured"
	if e.LastErr != nil {
		last = e.LastErr.Error()
	}
	return fmt.Sprintf("all providers failed (attempted: %s): %s",
		strings.Join(e.Attempted, ", "), last)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.LastErr }

// Orchestrator owns the ordered list of configured adapters. It is stateless
// per call; all durable state lives in the job queue.
type Orchestrator struct {
	adapters []stt.Adapter
	filter   safety.Filter
	recorder BiasRecorder
	metrics  *metrics.Metrics
}

// New creates an orchestrator over the given adapters in priority order.
// Only configured adapters belong in the slice; an unconfigured provider is
// simply absent, never a placeholder. filter must not be nil (use
// safety.PhraseFilter when no external endpoint is configured). recorder may
// be nil to disable bias auditing.
func New(adapters []stt.Adapter, filter safety.Filter, recorder BiasRecorder) *Orchestrator {
	return &Orchestrator{
		adapters: adapters,
		filter:   filter,
		recorder: recorder,
		metrics:  metrics.DefaultMetrics,
	}
}

// order returns the providers to attempt: the preferred provider first when
// it is configured, then the remaining providers in priority order.
func (o *Orchestrator) order(preferred string) []stt.Adapter {
	if preferred == "" {
		return o.adapters
	}
	ordered := make([]stt.Adapter, 0, len(o.adapters))
	for _, a := range o.adapters {
		if a.Name() == preferred {
			ordered = append(ordered, a)
		}
	}
	for _, a := range o.adapters {
		if a.Name() != preferred {
			ordered = append(ordered, a)
		}
	}
	return ordered
}

// Health returns an eventually consistent snapshot of provider health.
func (o *Orchestrator) Health() []models.ProviderHealth {
	out := make([]models.ProviderHealth, 0, len(o.adapters))
	for _, a := range o.adapters {
		out = append(out, models.ProviderHealth{
			Name:             a.Name(),
			Configured:       true,
			LastKnownHealthy: a.IsHealthy(),
		})
	}
	return out
}

// Transcribe runs one orchestration call: validate, iterate the provider
// order with failover, then apply the mandatory crisis scan and optional
// bias recording to the successful result.
func (o *Orchestrator) Transcribe(ctx context.Context, req models.TranscriptionRequest) (*models.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("empty audio payload: %w", stt.ErrInvalidInput)
	}

	ordered := o.order(req.Options.PreferredProvider)
	if len(ordered) == 0 {
		return nil, &AllProvidersFailedError{}
	}

	opts := stt.TranscribeOptions{
		Language:    req.Options.Language,
		Diarization: req.Options.SpeakerDiarization,
	}

	if req.Options.Realtime && req.Options.MaxLatencyMs > 0 {
		return o.transcribeRealtime(ctx, ordered, req, opts)
	}

	log := logging.WithComponent("orchestrator")
	var (
		attempted []string
		lastErr   error
	)
	for i, adapter := range ordered {
		attempted = append(attempted, adapter.Name())
		start := time.Now()

		res, err := adapter.Transcribe(ctx, req.Audio, opts)
		if err != nil {
			lastErr = err
			o.metrics.RecordProviderFailure(adapter.Name(), errorType(err))
			if i < len(ordered)-1 {
				o.metrics.RecordFailover(adapter.Name())
			}
			log.Warn().
				Err(err).
				Str("sttProvider", adapter.Name()).
				Msg("Provider failed, trying next")
			continue
		}

		o.metrics.RecordTranscription(adapter.Name(), "batch", time.Since(start).Seconds())
		return o.finish(ctx, res, req), nil
	}

	return nil, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// transcribeRealtime is the latency-bounded mode: time-boxed sequential
// fallback, not concurrent racing. Each provider is awaited for at most the
// latency budget; when the timer fires the orchestrator stops waiting and
// moves on to the next provider. The abandoned call is never forcibly
// cancelled - it may complete in the background, but its result is discarded.
func (o *Orchestrator) transcribeRealtime(ctx context.Context, ordered []stt.Adapter, req models.TranscriptionRequest, opts stt.TranscribeOptions) (*models.Result, error) {
	log := logging.WithComponent("orchestrator")
	budget := time.Duration(req.Options.MaxLatencyMs) * time.Millisecond

	type outcome struct {
		res *models.Result
		err error
	}

	var (
		attempted []string
		lastErr   error
	)
	for _, adapter := range ordered {
		attempted = append(attempted, adapter.Name())
		start := time.Now()

		// Buffered so the late result of an abandoned call is dropped
		// without leaking the goroutine.
		ch := make(chan outcome, 1)
		go func(a stt.Adapter) {
			res, err := a.Transcribe(ctx, req.Audio, opts)
			ch <- outcome{res: res, err: err}
		}(adapter)

		timer := time.NewTimer(budget)
		select {
		case out := <-ch:
			timer.Stop()
			if out.err != nil {
				lastErr = out.err
				o.metrics.RecordProviderFailure(adapter.Name(), errorType(out.err))
				o.metrics.RecordFailover(adapter.Name())
				log.Warn().
					Err(out.err).
					Str("sttProvider", adapter.Name()).
					Msg("Provider failed within latency budget, trying next")
				continue
			}
			o.metrics.RecordTranscription(adapter.Name(), "realtime", time.Since(start).Seconds())
			return o.finish(ctx, out.res, req), nil
		case <-timer.C:
			lastErr = fmt.Errorf("%s exceeded %dms budget: %w", adapter.Name(), req.Options.MaxLatencyMs, stt.ErrTimeout)
			o.metrics.RecordRealtimeTimeout(adapter.Name())
			o.metrics.RecordFailover(adapter.Name())
			log.Warn().
				Str("sttProvider", adapter.Name()).
				Int64("maxLatencyMs", req.Options.MaxLatencyMs).
				Msg("Latency budget expired, abandoning provider")
		}
	}

	return nil, &AllProvidersFailedError{Attempted: attempted, LastErr: lastErr}
}

// finish applies the post-transcription obligations to a successful result:
// the central crisis scan (unconditional, regardless of the provider's own
// content-safety signal) and bias recording when demographics are present.
func (o *Orchestrator) finish(ctx context.Context, res *models.Result, req models.TranscriptionRequest) *models.Result {
	log := logging.WithProvider(res.Provider)

	start := time.Now()
	assessment, err := o.filter.Detect(ctx, res.Text)
	if err != nil {
		// Never fabricate a "no risk" assessment: the field stays absent so
		// "not scanned" remains distinguishable from "scanned, clean".
		o.metrics.RecordCrisisFilterError()
		log.Warn().Err(err).Msg("Crisis filter unavailable, returning result without assessment")
	} else {
		o.metrics.RecordCrisisScan(assessment.HasCriticalContent, assessment.Severity, time.Since(start).Seconds())
		if assessment.HasCriticalContent {
			// Attached only on a hit; a clean scan leaves the field absent and
			// is recorded through metrics instead. The filter's severity is
			// passed through verbatim, never normalized.
			res.Metadata.CrisisDetection = assessment
			log.Warn().
				Str("severity", assessment.Severity).
				Strs("detectedPhrases", assessment.DetectedPhrases).
				Bool("requiresImmediateAction", assessment.RequiresImmediateAction).
				Msg("Critical content detected in transcript")
		}
	}

	if o.recorder != nil && req.Options.Demographics != nil {
		o.recorder.Record(ctx, res, req.Options.Demographics)
	}

	return res
}

func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, stt.ErrTransient):
		return "transient"
	case errors.Is(err, stt.ErrTimeout):
		return "timeout"
	case errors.Is(err, stt.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, stt.ErrNotSupported):
		return "not_supported"
	default:
		return "other"
	}
}
