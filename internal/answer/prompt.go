package answer

import "strings"

// BuildPrompt - весь найденный контекст целиком в одном промпте
func BuildPrompt(contextText, question string) string {
	var buf strings.Builder

	buf.WriteString("Use the following pieces of context to answer the question at the end. ")
	buf.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")
	buf.WriteString(contextText)
	buf.WriteString("\n\nQuestion: ")
	buf.WriteString(strings.TrimSpace(question))
	buf.WriteString("\nHelpful Answer:")

	return buf.String()
}
