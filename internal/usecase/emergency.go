package usecase

import "regexp"

// EmergencyReply canned answer sent instead of calling the model
const EmergencyReply = "⚠️ These symptoms may be serious — please seek urgent medical care immediately."

// emergencyRe whole-word match; RE2's \b only knows ASCII word characters,
// so the boundaries are spelled out over Unicode letters and digits
var emergencyRe = regexp.MustCompile(
	`(?i)(?:^|[^\p{L}\p{N}_])(?:chest pain|difficulty breathing|shortness of breath|unconscious|stroke)(?:$|[^\p{L}\p{N}_])`,
)

// IsEmergency reports whether text mentions one of the urgent symptom phrases
func IsEmergency(text string) bool {
	return emergencyRe.MatchString(text)
}
