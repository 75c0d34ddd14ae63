package usecase

import (
	"strings"

	"docchat/internal/domain"
)

const (
	promptDivider = "----------------------------------------------"
	noHistory     = "No previous conversation."
)

// DefaultDirective is the system directive used when none is configured.
var DefaultDirective = strings.Join([]string{
	"You are an intelligent Q&A bot and represent yourself as NewGas assistant, so use words like us, we, our.",
	"You reply only with respect to the context provided above.",
	"You understand simple meet-and-greet messages as well as context-specific messages.",
	"Reply with a greet message to the messages like Hi, Hello, How are you? by ignoring the context.",
	"Must reply formally to the messages like ok, thanks, sure, yes, no, alright, cool, got it, roger by ignoring the context.",
	"Strictly avoid referring to any context, pdf, or faq document!",
	"Never reply an empty response!!",
	"",
}, "\n")

// AssemblePrompt renders the single prompt sent to the completion backend.
// History is rendered oldest first and nothing is truncated.
func AssemblePrompt(chunks []string, query, directive string, history []domain.Turn) string {
	var b strings.Builder

	b.WriteString("Conversation so far:\n")
	b.WriteString(formatHistory(history))
	b.WriteString("\n")

	b.WriteString(promptDivider + "\n")
	b.WriteString(directive)
	b.WriteString("\n")

	b.WriteString(promptDivider + "\n")
	b.WriteString("context is below:\n")
	b.WriteString(strings.Join(chunks, "\n"))
	b.WriteString("\n")

	b.WriteString(promptDivider + "\n")
	b.WriteString("user query is below:\n")
	b.WriteString(query)
	b.WriteString("\n")

	return b.String()
}

func formatHistory(history []domain.Turn) string {
	if len(history) == 0 {
		return noHistory
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		lines = append(lines, "User: "+t.Query+"\nAssistant: "+t.Response)
	}
	return strings.Join(lines, "\n")
}
