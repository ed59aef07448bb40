// Package prompts holds the model prompt templates. The templates carry the
// role, the output contract and the query rules; the catalog description is
// appended at call time.
package prompts

import (
	"fmt"
	"strings"
)

// Prompts contains all pipeline prompts loaded from embedded files.
type Prompts struct {
	Generate string
	Narrate  string
}

// Load loads all prompts from the embedded filesystem.
func Load() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if p.Narrate, err = loadPrompt("NARRATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load NARRATE: %w", err)
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
