// Package persona loads named persona cards (character definitions) from
// disk and caches them for the process lifetime. A card carries the bot's
// description, example dialogue, greeting, and the prompt template the
// pipeline renders per request.
package persona

import (
	"fmt"
	"regexp"
	"strings"
)

// Template placeholder names. The renderer substitutes exactly this set;
// a template referencing anything else is rejected at load time.
const (
	PlaceholderPersonaName     = "persona_name"
	PlaceholderDescription     = "persona_description"
	PlaceholderExampleDialogue = "example_dialogue"
	PlaceholderLongTermMemory  = "long_term_memory"
	PlaceholderShortTermMemory = "short_term_memory"
	PlaceholderUserInfo        = "user_info"
	PlaceholderCurrentInput    = "current_input"
)

// requiredPlaceholders must appear in every prompt template. persona_name
// and example_dialogue are optional.
var requiredPlaceholders = []string{
	PlaceholderDescription,
	PlaceholderLongTermMemory,
	PlaceholderShortTermMemory,
	PlaceholderUserInfo,
	PlaceholderCurrentInput,
}

// knownPlaceholders is the full supplied set.
var knownPlaceholders = map[string]bool{
	PlaceholderPersonaName:     true,
	PlaceholderDescription:     true,
	PlaceholderExampleDialogue: true,
	PlaceholderLongTermMemory:  true,
	PlaceholderShortTermMemory: true,
	PlaceholderUserInfo:        true,
	PlaceholderCurrentInput:    true,
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// DialogueExample is one (user utterance, persona reply) pair.
type DialogueExample struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Persona is a loaded character card. Immutable once loaded.
type Persona struct {
	// Name is the persona's display name.
	Name string `json:"name"`

	// Description is the character background injected into the prompt.
	Description string `json:"description"`

	// FirstMessage is the greeting sent on a user's first contact.
	FirstMessage string `json:"first_message"`

	// ExampleDialogue demonstrates the persona's voice.
	ExampleDialogue []DialogueExample `json:"example_dialogue"`

	// PromptTemplate is the main chat template with {placeholder} slots.
	PromptTemplate string `json:"main_chat_prompt_template"`
}

// Validate checks the card shape and the template's placeholder contract.
func (p *Persona) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("missing field %q", "name")
	}
	if p.Description == "" {
		return fmt.Errorf("missing field %q", "description")
	}
	if p.PromptTemplate == "" {
		return fmt.Errorf("missing field %q", "main_chat_prompt_template")
	}

	refs := Placeholders(p.PromptTemplate)
	seen := make(map[string]bool, len(refs))
	for _, name := range refs {
		if !knownPlaceholders[name] {
			return fmt.Errorf("template references unknown placeholder {%s}", name)
		}
		seen[name] = true
	}
	for _, name := range requiredPlaceholders {
		if !seen[name] {
			return fmt.Errorf("template is missing required placeholder {%s}", name)
		}
	}
	return nil
}

// FormatExampleDialogue renders the example dialogue as transcript lines
// for the {example_dialogue} slot. Empty when the card has no examples.
func (p *Persona) FormatExampleDialogue() string {
	if len(p.ExampleDialogue) == 0 {
		return ""
	}
	var b strings.Builder
	for _, ex := range p.ExampleDialogue {
		fmt.Fprintf(&b, "用户：%s\n%s：%s\n", ex.User, p.Name, ex.Bot)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Placeholders returns the placeholder names referenced by a template,
// in order of first appearance.
func Placeholders(template string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}
