package escalation

import (
	"strings"

	"omnichannel-gateway/internal/models"
)

// Keyword lists for the derived sentiment score. Each keyword counts once
// per message regardless of how many times it repeats inside it.
var negativeKeywords = []string{
	"bad", "terrible", "awful", "horrible", "angry", "worst",
	"cancel", "complaint", "dissatisfied", "problem", "disappointed",
	"ruim", "péssimo", "pessimo", "horrível", "horrivel", "problema",
	"reclamação", "reclamacao", "cancelar", "absurdo",
}

var positiveKeywords = []string{
	"good", "great", "excellent", "perfect", "awesome", "love",
	"thanks", "thank you", "helpful",
	"ótimo", "otimo", "obrigado", "obrigada", "excelente", "perfeito",
	"maravilhoso", "adorei",
}

// SentimentScore derives a 0..1 score from the conversation's inbound
// messages: start neutral at 0.5, subtract 0.1 per negative keyword class
// present in a message, add 0.1 per positive class, clamped to [0, 1].
func SentimentScore(messages []models.Message) float64 {
	score := 0.5
	for _, msg := range messages {
		if msg.Direction != models.DirectionInbound {
			continue
		}
		content := strings.ToLower(msg.Content)
		for _, kw := range negativeKeywords {
			if strings.Contains(content, kw) {
				score -= 0.1
			}
		}
		for _, kw := range positiveKeywords {
			if strings.Contains(content, kw) {
				score += 0.1
			}
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
