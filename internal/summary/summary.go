// Package summary turns a raw label/confidence pair into the human-readable
// sentence shown on the result card.
package summary

import (
	"fmt"
	"strings"
)

// Generate produces a user-facing summary for a prediction. Wording tiers
// depend on whether the label is a clear/normal reading and on how confident
// the model was.
func Generate(label string, confidence float64) string {
	lower := strings.ToLower(label)
	percent := confidence * 100

	if lower == "clear" || lower == "normal" {
		if confidence > 0.85 {
			return fmt.Sprintf("The analysis indicates clear breathing with high confidence (%.1f%%). "+
				"No significant abnormal patterns were detected in the audio sample.", percent)
		}
		return fmt.Sprintf("The analysis suggests the breathing is likely clear (%.1f%% confidence). "+
			"While no major anomalies were found, the signal was not perfectly clean.", percent)
	}

	switch {
	case confidence > 0.9:
		return fmt.Sprintf("The analysis has detected sounds characteristic of %s with very high confidence (%.1f%%). "+
			"This is a strong indicator and should be reviewed by a healthcare professional.", label, percent)
	case confidence > 0.7:
		return fmt.Sprintf("The analysis suggests the presence of %s with a confidence of %.1f%%. "+
			"It is recommended to consult a doctor for a formal diagnosis.", label, percent)
	default:
		return fmt.Sprintf("There are some indications of %s (%.1f%% confidence), but the signal is not definitive. "+
			"Monitoring and a potential follow-up are advised.", label, percent)
	}
}
