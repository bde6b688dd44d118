package generation

import "strings"

// FailureKind классифицирует ошибку генерации для UI и планировщика повторов.
type FailureKind string

const (
	// FailureTransient - сетевые и инфраструктурные сбои, имеет смысл повторить.
	FailureTransient FailureKind = "transient"
	// FailureContentPolicy - запрос отклонен фильтром контента провайдера.
	FailureContentPolicy FailureKind = "content_policy"
	// FailureUnknown - все остальное.
	FailureUnknown FailureKind = "unknown"
)

var transientPatterns = []string{
	"network",
	"timeout",
	"timed out",
	"deadline exceeded",
	"fetch failed",
	"connection refused",
	"connection reset",
	"unable to connect",
	"502",
	"503",
	"bad gateway",
	"service unavailable",
	"too many requests",
	"429",
}

var contentPolicyPatterns = []string{
	"content_filter",
	"content filter",
	"content policy",
	"content management policy",
	"moderation",
	"safety",
}

// Classify определяет вид сбоя по тексту ошибки. Провайдеры не дают
// машиночитаемых кодов на все случаи, поэтому матчим по подстрокам.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, p := range contentPolicyPatterns {
		if strings.Contains(msg, p) {
			return FailureContentPolicy
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return FailureTransient
		}
	}
	return FailureUnknown
}

// UserMessage возвращает текст для показа пользователю.
func (k FailureKind) UserMessage() string {
	switch k {
	case FailureTransient:
		return "We couldn't reach the generation service. Please check your connection and try again."
	case FailureContentPolicy:
		return "We couldn't create a devotional for this request. Please try rephrasing what you're seeking."
	default:
		return "Something went wrong while preparing your devotional. Please try again."
	}
}

// AutoRetryable сообщает, можно ли повторять попытку без участия
// пользователя. Неизвестные сбои повторяются только вручную.
func (k FailureKind) AutoRetryable() bool {
	return k == FailureTransient
}
