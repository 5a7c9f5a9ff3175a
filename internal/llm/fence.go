package llm

import "strings"

// StripFence removes a Markdown code fence wrapped around a whole response,
// with or without a language tag. Models add one around JSON and Markdown
// even when told not to.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := body[:nl]
		if !strings.ContainsAny(tag, " {[") && len(tag) < 20 {
			body = body[nl+1:]
		}
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
