package ai

import "strings"

// SystemPrompt builds the instructions sent ahead of every conversation.
func SystemPrompt(snapshot string, deep bool) string {
	var b strings.Builder
	b.WriteString(`You are a friendly personal finance coach inside a budgeting app.
Give practical, specific advice grounded in the user's own numbers. Keep a warm tone,
avoid jargon, and never recommend specific securities. If the user asks about something
outside personal finance, steer back politely.`)

	if deep {
		b.WriteString(`

This is a deep analysis request. Structure the answer with short headed sections:
Where you stand, What is working, Risks, and Next three steps. Quantify each point
using the snapshot below.`)
	} else {
		b.WriteString("\n\nKeep the answer under 150 words.")
	}

	if snapshot != "" {
		b.WriteString("\n\nUser financial snapshot:\n")
		b.WriteString(snapshot)
	}
	return b.String()
}
