package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// ErrUnknownPrompt is returned for prompt names the store does not manage.
var ErrUnknownPrompt = errors.New("unknown prompt")

// promptSpec describes one managed prompt: its default text and how many
// %s verbs the generator fills in.
type promptSpec struct {
	text  string
	verbs int
}

//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var prompts = map[string]promptSpec{
	driven.PromptTutorSystem: {verbs: 1, text: `You are Lectern, a study assistant for a school. You help students understand the learning material their teacher uploaded.

When answering questions:
1. Use only the numbered material excerpts below
2. Cite the excerpts you used as [n]
3. If the excerpts do not contain the answer, say the material does not cover it
4. Keep answers at the level of the material and be concise

Material excerpts:
%s`},

	driven.PromptNoContext: {text: `(no excerpts matched this question)`},
}

const promptReadme = `# Lectern Prompts

Prompts used when answering chat turns. Edit a file to change how the tutor
answers; the server picks up edits after a restart, the CLI on its next run.

- tutor_system.txt: system prompt. Keep exactly one %s where the numbered
  material excerpts are inserted.
- no_context.txt: placed in the excerpt slot when retrieval found nothing.
  Must not contain any % verbs.

A file that breaks these rules is ignored and the built-in prompt is used.
`

// PromptStore serves tutor prompts from <dir>/<name>.txt, seeding the
// directory with the built-in prompts on first use. Edited files that
// would break formatting fall back to the built-in text.
type PromptStore struct {
	dir string
	log logger.Logger

	seed    sync.Once
	seedErr error

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore creates a prompt store rooted at dir, or ~/.lectern/prompts
// when dir is empty. No files are touched until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".lectern", "prompts")
	}
	return &PromptStore{
		dir:   dir,
		log:   logger.With("prompts"),
		cache: make(map[string]string),
	}, nil
}

// Load returns the prompt called name.
func (s *PromptStore) Load(name string) (string, error) {
	spec, ok := prompts[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrompt, name)
	}

	s.seed.Do(s.seedDir)
	if s.seedErr != nil {
		return spec.text, nil
	}

	s.mu.RLock()
	text, cached := s.cache[name]
	s.mu.RUnlock()
	if cached {
		return text, nil
	}

	text = s.read(name, spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.cache[name]; ok {
		return prev, nil
	}
	s.cache[name] = text
	return text, nil
}

// read loads name from disk, falling back to the built-in text when the
// file is missing, empty or has the wrong number of verbs.
func (s *PromptStore) read(name string, spec promptSpec) string {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("reading prompt %s: %v", name, err)
		}
		return spec.text
	}

	text := strings.TrimSpace(string(data))
	if err := checkVerbs(text, spec.verbs); err != nil {
		s.log.Warn("ignoring %s: %v", s.path(name), err)
		return spec.text
	}
	return text
}

// checkVerbs requires exactly want %s verbs and no other % directives
// apart from %%.
func checkVerbs(text string, want int) error {
	if text == "" {
		return errors.New("prompt is empty")
	}
	got := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '%' {
			continue
		}
		if i+1 == len(text) {
			return errors.New("trailing %")
		}
		switch text[i+1] {
		case '%':
		case 's':
			got++
		default:
			return fmt.Errorf("unsupported verb %%%c", text[i+1])
		}
		i++
	}
	if got != want {
		return fmt.Errorf("expected %d %%s, found %d", want, got)
	}
	return nil
}

// Reload drops cached prompts so edited files are read again.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

// seedDir writes any missing prompt files and the README. Existing files
// are never overwritten.
func (s *PromptStore) seedDir() {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.seedErr = fmt.Errorf("create prompt directory: %w", err)
		s.log.Warn("using built-in prompts: %v", s.seedErr)
		return
	}

	files := map[string]string{"README.md": promptReadme}
	for name, spec := range prompts {
		files[name+".txt"] = spec.text
	}
	for file, content := range files {
		path := filepath.Join(s.dir, file)
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			s.seedErr = fmt.Errorf("write %s: %w", file, err)
			s.log.Warn("using built-in prompts: %v", s.seedErr)
			return
		}
	}
}
