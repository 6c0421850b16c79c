package pipeline

import (
	"strings"

	"github.com/akinomura/senpai/pkg/senpai/persona"
)

// Render fills the persona's prompt template with the assembled bundle.
// Pure function: same persona and bundle always yield the same prompt.
// Returns a TemplateError if the template references a placeholder outside
// the supplied set (defense in depth; the catalog already validates cards
// at load time).
func Render(p *persona.Persona, b *Bundle) (string, error) {
	values := map[string]string{
		persona.PlaceholderPersonaName:     p.Name,
		persona.PlaceholderDescription:     p.Description,
		persona.PlaceholderExampleDialogue: p.FormatExampleDialogue(),
		persona.PlaceholderLongTermMemory:  FormatMemories(b.LongTermMemories),
		persona.PlaceholderShortTermMemory: b.ShortTermTranscript,
		persona.PlaceholderUserInfo:        b.UserInfo,
		persona.PlaceholderCurrentInput:    b.CurrentInput,
	}

	out := p.PromptTemplate
	for _, name := range persona.Placeholders(p.PromptTemplate) {
		value, ok := values[name]
		if !ok {
			return "", &TemplateError{Placeholder: name}
		}
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}

	return out, nil
}

// FormatMemories renders the long-term memory block: one bullet per
// snippet, or the no-memory marker when the list is empty.
func FormatMemories(memories []string) string {
	if len(memories) == 0 {
		return noMemoryMarker
	}
	var b strings.Builder
	for _, m := range memories {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
