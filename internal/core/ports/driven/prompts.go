package driven

// PromptStore provides access to generator prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptTutorSystem is the system prompt for grounded chat turns.
	PromptTutorSystem = "tutor_system"

	// PromptNoContext replaces the excerpt list when a turn has no context.
	PromptNoContext = "no_context"
)

// PromptStoreAware is an optional interface for adapters that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the adapter should use hardcoded default prompts.
	SetPromptStore(store PromptStore)
}
