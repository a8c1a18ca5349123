// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - SettingsStore: TOML-based settings with environment overrides
//   - PromptStore: user-editable generator prompts
package file
