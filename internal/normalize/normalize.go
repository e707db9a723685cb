// Package normalize maps the heterogeneous JSON shapes returned by
// different backend versions onto the one canonical AnalysisResult schema.
package normalize

import (
	"github.com/tidwall/gjson"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

// Alias chains per logical field, evaluated first-present-wins. New backend
// versions are accommodated by adding aliases here, not by branching logic.
var (
	labelAliases       = []string{"predicted_label", "label"}
	confidenceAliases  = []string{"confidence", "score"}
	predictionsAliases = []string{"predictions", "probs"}
	processingAliases  = []string{"processing_time", "latency_ms"}
	sourceAliases      = []string{"source"}
	summaryAliases     = []string{"text_summary", "summary"}
)

const (
	defaultLabel  = "Unknown"
	defaultSource = "API"
)

// Result is total: any missing or mistyped field resolves to its documented
// default, never to an error. Callers must unwrap envelopes first (see
// UnwrapEnvelope).
func Result(raw []byte) domain.AnalysisResult {
	body := gjson.ParseBytes(raw)

	return domain.AnalysisResult{
		Predictions:        pickPredictions(body, predictionsAliases),
		Label:              pickString(body, labelAliases, defaultLabel),
		Confidence:         pickNumber(body, confidenceAliases),
		Source:             pickString(body, sourceAliases, defaultSource),
		ProcessingTime:     pickNumber(body, processingAliases),
		TextSummary:        pickString(body, summaryAliases, ""),
		Transcription:      pickString(body, []string{"transcription", "transcript"}, ""),
		PossibleConditions: pickStrings(body, "possible_conditions"),
		Error:              pickString(body, []string{"error"}, ""),
	}
}

// UnwrapEnvelope detects the {status, data} wrapper some backend versions
// use and returns the inner payload; bare objects pass through unchanged.
func UnwrapEnvelope(raw []byte) []byte {
	body := gjson.ParseBytes(raw)
	data := body.Get("data")
	if body.Get("status").Exists() && data.IsObject() {
		return []byte(data.Raw)
	}
	return raw
}

func pickString(body gjson.Result, aliases []string, def string) string {
	for _, key := range aliases {
		v := body.Get(key)
		if v.Type == gjson.String {
			return v.String()
		}
	}
	return def
}

// pickNumber widens any JSON number to float64. Non-numeric values fall
// through to 0.0 rather than raising.
func pickNumber(body gjson.Result, aliases []string) float64 {
	for _, key := range aliases {
		v := body.Get(key)
		if v.Type == gjson.Number {
			return v.Float()
		}
	}
	return 0.0
}

func pickPredictions(body gjson.Result, aliases []string) map[string]float64 {
	out := map[string]float64{}
	for _, key := range aliases {
		v := body.Get(key)
		if !v.IsObject() {
			continue
		}
		v.ForEach(func(k, val gjson.Result) bool {
			if val.Type == gjson.Number {
				out[k.String()] = val.Float()
			}
			return true
		})
		break
	}
	return out
}

func pickStrings(body gjson.Result, key string) []string {
	v := body.Get(key)
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		if item.Type == gjson.String {
			out = append(out, item.String())
		}
	}
	return out
}
