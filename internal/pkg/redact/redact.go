// redact маскирует чувствительные значения перед записью в лог.
package redact

import "strings"

// Email оставляет первые два символа локальной части и домен: "jo***@example.com".
// Строки без единственного "@" целиком заменяются на "***".
func Email(s string) string {
	s = strings.TrimSpace(s)

	local, domain, ok := strings.Cut(s, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***"
	}

	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + strings.ToLower(domain)
}

// Token никогда не раскрывает токен; пустой токен отмечается отдельно,
// чтобы в логах было видно «не передан» и «передан».
func Token(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return "[EMPTY_TOKEN]"
	}

	return "[REDACTED_TOKEN]"
}
