package driven

// PromptStore provides access to prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any cached prompts so the next Load reads fresh content.
	Reload()
}

// Prompt template names.
const (
	// PromptSystemGrounded is the system instruction used when context is
	// available. It carries the grounding directive.
	PromptSystemGrounded = "answer_system_grounded"

	// PromptSystemPlain is the system instruction used without context.
	PromptSystemPlain = "answer_system_plain"

	// PromptUserGrounded wraps context and question. It has two %s
	// placeholders: context, then question.
	PromptUserGrounded = "answer_user_grounded"
)
