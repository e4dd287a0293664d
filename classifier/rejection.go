package classifier

import "ally-backend/models"

var rejectionMessages = map[string]string{
	"COOKING":       "I specialize in legal matters, not cooking. For recipes, try a cooking site or app. If you have a question about a court case or your legal rights, I'm happy to help.",
	"WEATHER":       "I can't help with weather forecasts. A weather service will serve you better there. For questions about court cases or legal matters, ask away.",
	"ENTERTAINMENT": "Entertainment recommendations are outside my area. I focus on court cases and legal questions, so feel free to ask about those.",
	"TECHNOLOGY":    "Tech support isn't my field. I work with court cases and legal questions. If your technology issue has a legal angle, such as a warranty or consumer dispute, I can help with that.",
	"MEDICAL":       "I can't give medical advice. Please consult a healthcare professional. If your situation involves a legal matter, such as medical negligence, I can help with the legal side.",
	"FINANCE":       "I don't give financial or investment advice. For legal questions about financial disputes, contracts, or debt cases, I'm glad to help.",
	"RELATIONSHIP":  "Personal relationship advice is outside my scope. If your question involves family law, such as divorce or custody, I can help with the legal aspects.",
	"TRAVEL":        "I can't help plan travel. If you have a legal question related to travel, such as a visa dispute or airline claim, that I can help with.",
	"SHOPPING":      "Shopping recommendations aren't my area. For consumer protection or purchase dispute questions, I'm happy to help with the legal side.",
	"SPORTS":        "Sports aren't my specialty. I focus on court cases and legal matters, so feel free to ask about those instead.",
	"INAPPROPRIATE": "I can't help with that request. I'm here to answer questions about court cases and legal matters.",
	"OTHER":         "That's outside what I can help with. I answer questions about court cases and legal matters, so feel free to ask about those.",
}

// RejectionMessage returns a category-appropriate redirect for an
// off-topic query. Unknown categories get the generic OTHER message.
func RejectionMessage(category string) string {
	if msg, ok := rejectionMessages[category]; ok {
		return msg
	}
	return rejectionMessages[models.CategoryOther]
}
