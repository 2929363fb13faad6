package advisor

import (
	"fmt"
	"strings"

	"pulse-sentinel/internal/domain"
)

const wellnessCoach = `You are a wellness assistant explaining the result of an automated screen of a person's weekly wearable data.

Rules:
- The anomaly tier and the listed remedies are final. Explain them; never contradict or re-grade them.
- Refer to the specific metrics that are outside healthy ranges.
- Keep it under 120 words, warm and plain. No lists, no headings.
- For a major tier, clearly urge the person to contact a doctor.
- Never diagnose a condition and never invent measurements.`

func BuildSystemPrompt() string {
	return wellnessCoach
}

// FormatAssessmentContext renders the assessment as the user turn of the prompt.
func FormatAssessmentContext(a domain.Assessment) string {
	var sb strings.Builder

	sb.WriteString("Weekly averages:\n")
	for i, v := range a.Input.Vector() {
		sb.WriteString(fmt.Sprintf("  %s: %.2f\n", domain.MetricNames[i], v))
	}
	sb.WriteString(fmt.Sprintf("\nAnomaly score: %.3f\nTier: %s\nVerdict: %s\n", a.Score, a.Tier, a.Tier.Headline()))

	if len(a.Remedies) > 0 {
		sb.WriteString("\nRemedies:\n")
		for _, r := range a.Remedies {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", r.Factor, r.Advice))
		}
	}
	return sb.String()
}
