package sentinel

import (
	"regexp"
	"strings"
)

type Language string

const (
	LangEnglish Language = "en"
	LangSpanish Language = "es"
)

var (
	spanishSignals = regexp.MustCompile(`(?i)[áéíóúñ¿¡]|\b(que|como|cómo|estoy|hola|reembolso|rembolso|devolución|devolucion|cuenta|ayuda|por favor|gracias|disculpa|perdón|perdon|quiero|solicito)\b`)
	englishSignals = regexp.MustCompile(`(?i)\b(refund|order|account|please|hello|hi|chargeback|usd|dollars|customer|issue|money|payment|card)\b`)
	nonASCII       = regexp.MustCompile(`[^\x00-\x7F]`)
)

// DetectLanguage picks en or es from signal words; a mixed or silent text
// falls back on whether it carries non-ASCII characters (accents, ñ).
func DetectLanguage(text string) Language {
	lower := strings.ToLower(text)

	hasSpanish := spanishSignals.MatchString(lower)
	hasEnglish := englishSignals.MatchString(lower)

	if hasSpanish && !hasEnglish {
		return LangSpanish
	}
	if hasEnglish && !hasSpanish {
		return LangEnglish
	}
	if nonASCII.MatchString(text) {
		return LangSpanish
	}
	return LangEnglish
}

// SentForApprovalMessage is the canned reply used when the sentinel files an
// approval request on the model's behalf.
func SentForApprovalMessage(lang Language) string {
	if lang == LangSpanish {
		return "He enviado tu solicitud de reembolso a un operador humano para su aprobación. Por favor, aguardá una respuesta de su parte."
	}
	return "I've sent your refund request to a human operator for approval. Please wait for a response from them."
}

// DeliveryFailedMessage covers the could-not-reach-approver case: the
// approval exists and stays pending, but nobody was notified.
func DeliveryFailedMessage(lang Language) string {
	if lang == LangSpanish {
		return "Registré tu solicitud de reembolso, pero no pude contactar al operador humano. Vamos a reintentar; tu solicitud sigue pendiente."
	}
	return "I recorded your refund request, but I couldn't reach the human operator. We'll retry; your request is still pending."
}

// EmptyReplyFallback is used when the model produced no usable text.
func EmptyReplyFallback(lang Language) string {
	if lang == LangSpanish {
		return "Perdón, no pude generar una respuesta útil. Probá reformular la pregunta o darme un poco más de contexto."
	}
	return "Sorry, I couldn't generate a useful reply. Please try rephrasing your question or giving me a bit more context."
}
