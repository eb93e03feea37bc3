// Package safety holds the shared crisis phrase list, the local substring
// scanner, and the client for the external crisis detection filter.
//
// The phrase list is deliberately consulted twice per transcript: each
// provider adapter scans locally and the orchestrator scans centrally.
// Defense in depth, not accidental duplication.
package safety

import (
	"sort"
	"strings"

	"ai-transcription-service/internal/models"
)

// PhraseListVersion identifies the phrase list revision attached to scans.
const PhraseListVersion = "2025-07-01"

// phraseSeverity maps each listed crisis phrase to its severity.
var phraseSeverity = map[string]string{
	"kill myself":           models.SeverityCritical,
	"end my life":           models.SeverityCritical,
	"suicide":               models.SeverityCritical,
	"want to die":           models.SeverityCritical,
	"end it all":            models.SeverityHigh,
	"better off dead":       models.SeverityHigh,
	"hurt myself":           models.SeverityHigh,
	"self harm":             models.SeverityHigh,
	"no reason to live":     models.SeverityHigh,
	"can't go on":           models.SeverityMedium,
	"give up on everything": models.SeverityMedium,
	"hopeless":              models.SeverityLow,
	"worthless":             models.SeverityLow,
}

var severityRank = map[string]int{
	models.SeverityNone:     0,
	models.SeverityLow:      1,
	models.SeverityMedium:   2,
	models.SeverityHigh:     3,
	models.SeverityCritical: 4,
}

// Phrases returns the listed crisis phrases in deterministic order.
func Phrases() []string {
	out := make([]string, 0, len(phraseSeverity))
	for p := range phraseSeverity {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ScanText performs a case-insensitive substring scan of text against the
// shared phrase list. It always returns an assessment: a clean transcript
// yields HasCriticalContent=false with severity "none". The "none" severity
// is reported verbatim, never normalized to "low".
func ScanText(text string) *models.CrisisAssessment {
	lower := strings.ToLower(text)

	detected := make([]string, 0, 2)
	severity := models.SeverityNone
	for _, phrase := range Phrases() {
		if !strings.Contains(lower, phrase) {
			continue
		}
		detected = append(detected, phrase)
		if severityRank[phraseSeverity[phrase]] > severityRank[severity] {
			severity = phraseSeverity[phrase]
		}
	}

	return &models.CrisisAssessment{
		HasCriticalContent:      len(detected) > 0,
		DetectedPhrases:         detected,
		Severity:                severity,
		RequiresImmediateAction: severityRank[severity] >= severityRank[models.SeverityHigh],
	}
}
