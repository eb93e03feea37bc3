package bias

import (
	"context"
	"testing"

	"ai-transcription-service/internal/events"
	"ai-transcription-service/internal/models"
)

func TestWER(t *testing.T) {
	tests := []struct {
		name       string
		hypothesis string
		reference  string
		want       float64
	}{
		{
			name:       "identical",
			hypothesis: "the quick brown fox",
			reference:  "the quick brown fox",
			want:       0,
		},
		{
			name:       "case and punctuation ignored",
			hypothesis: "Hello, World!",
			reference:  "hello world",
			want:       0,
		},
		{
			name:       "one substitution in four words",
			hypothesis: "the quick brown cat",
			reference:  "the quick brown fox",
			want:       0.25,
		},
		{
			name:       "one deletion in four words",
			hypothesis: "the quick brown",
			reference:  "the quick brown fox",
			want:       0.25,
		},
		{
			name:       "one insertion in four words",
			hypothesis: "the very quick brown fox",
			reference:  "the quick brown fox",
			want:       0.25,
		},
		{
			name:       "empty hypothesis",
			hypothesis: "",
			reference:  "hello world",
			want:       1,
		},
		{
			name:       "both empty",
			hypothesis: "",
			reference:  "",
			want:       0,
		},
		{
			name:       "clamped to one",
			hypothesis: "a b c d e f g h i j",
			reference:  "z",
			want:       1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WER(tt.hypothesis, tt.reference); got != tt.want {
				t.Errorf("WER(%q, %q) = %v, want %v", tt.hypothesis, tt.reference, got, tt.want)
			}
		})
	}
}

func TestTokenizeDropsPurePunctuation(t *testing.T) {
	got := tokenize("well -- yes, okay ...")
	want := []string{"well", "yes", "okay"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize = %v, want %v", got, want)
		}
	}
}

func TestRecorderSkipsWithoutReference(t *testing.T) {
	rec := NewRecorder(events.New(nil))
	res := &models.Result{Text: "hello", Provider: "alpha"}

	// Neither call may panic or publish: there is nothing to measure.
	rec.Record(context.Background(), res, nil)
	rec.Record(context.Background(), res, &models.SpeakerDemographics{Accent: "irish"})
}

func TestRecorderEmitsWithReference(t *testing.T) {
	rec := NewRecorder(events.New(nil))
	res := &models.Result{Text: "hello world", Provider: "alpha", Confidence: 0.9}
	demo := &models.SpeakerDemographics{Accent: "irish", ExpectedText: "hello world"}

	// Publisher is in log-only mode; this exercises the full emission path.
	rec.Record(context.Background(), res, demo)
}
